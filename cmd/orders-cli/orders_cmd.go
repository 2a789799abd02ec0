package main

import (
	"flag"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"orderchain/core/types"
	"orderchain/crypto"
	"orderchain/native/orders"
	"orderchain/native/orders/notice"
)

// orderView is the subset of orders_getOrder needed to seal shipment notices.
type orderView struct {
	ID             string `json:"id"`
	State          string `json:"state"`
	BuyerNotice    string `json:"buyerNotice"`
	ReporterNotice string `json:"reporterNotice"`
	ArbiterNotice  string `json:"arbiterNotice"`
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

// parseAmount accepts a non-negative base-10 integer. Empty means zero.
func parseAmount(flagName, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(big.Int), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("--%s must be a non-negative integer", flagName)
	}
	return value, nil
}

func parseOptionalAddress(flagName, raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, nil
	}
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("--%s: %v", flagName, err)
	}
	return addr, nil
}

func parseOptionalHex(flagName, raw string) ([]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	decoded, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("--%s must be 0x-prefixed hex", flagName)
	}
	return decoded, nil
}

func runSubmit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("submit", stderr)
	var keyFile, id, price, shipping, value, metadata, reporter, reporterNotice, arbiter, arbiterNotice string
	fs.StringVar(&keyFile, "key", "", "buyer keystore file")
	fs.StringVar(&id, "id", "", "order identifier chosen by the buyer")
	fs.StringVar(&price, "price", "", "item price in base units")
	fs.StringVar(&shipping, "shipping", "0", "shipping fee in base units")
	fs.StringVar(&value, "value", "", "native value to attach (native rail: price + shipping)")
	fs.StringVar(&metadata, "metadata", "", "free-form order metadata")
	fs.StringVar(&reporter, "reporter", "", "delivery reporter address (per-order roles)")
	fs.StringVar(&reporterNotice, "reporter-notice", "", "reporter notice public key as 0x hex")
	fs.StringVar(&arbiter, "arbiter", "", "dispute arbiter address (per-order roles)")
	fs.StringVar(&arbiterNotice, "arbiter-notice", "", "arbiter notice public key as 0x hex")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(id) == "" {
		return printError(stderr, "--id is required")
	}
	if strings.TrimSpace(price) == "" {
		return printError(stderr, "--price is required")
	}

	payload := types.SubmitPayload{ID: strings.TrimSpace(id), Metadata: []byte(metadata)}
	var err error
	if payload.Price, err = parseAmount("price", price); err != nil {
		return printError(stderr, err.Error())
	}
	if payload.Shipping, err = parseAmount("shipping", shipping); err != nil {
		return printError(stderr, err.Error())
	}
	attached, err := parseAmount("value", value)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if payload.Reporter, err = parseOptionalAddress("reporter", reporter); err != nil {
		return printError(stderr, err.Error())
	}
	if payload.Arbiter, err = parseOptionalAddress("arbiter", arbiter); err != nil {
		return printError(stderr, err.Error())
	}
	if payload.ReporterNotice, err = parseOptionalHex("reporter-notice", reporterNotice); err != nil {
		return printError(stderr, err.Error())
	}
	if payload.ArbiterNotice, err = parseOptionalHex("arbiter-notice", arbiterNotice); err != nil {
		return printError(stderr, err.Error())
	}

	key, err := loadKey(keyFile)
	if err != nil {
		return handleError(stderr, err)
	}
	payload.BuyerNotice = key.PubKey().NoticeKey()
	result, err := sendSignedCall(key, types.CallSubmit, attached, payload)
	if err != nil {
		return handleError(stderr, err)
	}
	writeRPCResult(stdout, result)
	return 0
}

// runOrderRef handles transitions that only name the order.
func runOrderRef(name string, callType types.CallType, takesValue bool) func([]string, io.Writer, io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		fs := newFlagSet(name, stderr)
		var keyFile, id, value string
		fs.StringVar(&keyFile, "key", "", "caller keystore file")
		fs.StringVar(&id, "id", "", "order identifier")
		if takesValue {
			fs.StringVar(&value, "bond", "", "bond to attach in base units")
		}
		if !parseFlags(fs, args, stderr) {
			return 1
		}
		if strings.TrimSpace(id) == "" {
			return printError(stderr, "--id is required")
		}
		attached, err := parseAmount("bond", value)
		if err != nil {
			return printError(stderr, err.Error())
		}
		key, err := loadKey(keyFile)
		if err != nil {
			return handleError(stderr, err)
		}
		result, err := sendSignedCall(key, callType, attached, types.OrderRefPayload{ID: strings.TrimSpace(id)})
		if err != nil {
			return handleError(stderr, err)
		}
		writeRPCResult(stdout, result)
		return 0
	}
}

// runShipment seals the shipping notice to every party of the order before
// handing off or shipping.
func runShipment(name string, callType types.CallType) func([]string, io.Writer, io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		fs := newFlagSet(name, stderr)
		var keyFile, id, message, value string
		fs.StringVar(&keyFile, "key", "", "caller keystore file")
		fs.StringVar(&id, "id", "", "order identifier")
		fs.StringVar(&message, "notice", "", "shipping notice plaintext (tracking number, carrier)")
		if callType == types.CallShip {
			fs.StringVar(&value, "bond", "", "reporter bond to attach (bonded workflow)")
		}
		if !parseFlags(fs, args, stderr) {
			return 1
		}
		if strings.TrimSpace(id) == "" {
			return printError(stderr, "--id is required")
		}
		if message == "" {
			return printError(stderr, "--notice is required")
		}
		attached, err := parseAmount("bond", value)
		if err != nil {
			return printError(stderr, err.Error())
		}

		var view orderView
		if err := query("orders_getOrder", map[string]string{"id": strings.TrimSpace(id)}, &view); err != nil {
			return handleError(stderr, err)
		}
		order, err := view.notices()
		if err != nil {
			return handleError(stderr, err)
		}
		shipment, err := notice.SealShipment(order, []byte(message))
		if err != nil {
			return handleError(stderr, err)
		}

		key, err := loadKey(keyFile)
		if err != nil {
			return handleError(stderr, err)
		}
		payload := types.ShipmentPayload{
			ID:       view.ID,
			Buyer:    shipment.Buyer,
			Reporter: shipment.Reporter,
			Arbiter:  shipment.Arbiter,
		}
		result, err := sendSignedCall(key, callType, attached, payload)
		if err != nil {
			return handleError(stderr, err)
		}
		writeRPCResult(stdout, result)
		return 0
	}
}

func (v orderView) notices() (*orders.Order, error) {
	order := &orders.Order{ID: v.ID}
	var err error
	if order.BuyerNotice, err = parseOptionalHex("buyerNotice", v.BuyerNotice); err != nil {
		return nil, err
	}
	if order.ReporterNotice, err = parseOptionalHex("reporterNotice", v.ReporterNotice); err != nil {
		return nil, err
	}
	if order.ArbiterNotice, err = parseOptionalHex("arbiterNotice", v.ArbiterNotice); err != nil {
		return nil, err
	}
	return order, nil
}

func runResolve(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("resolve", stderr)
	var keyFile, id string
	var refund bool
	fs.StringVar(&keyFile, "key", "", "arbiter keystore file")
	fs.StringVar(&id, "id", "", "order identifier")
	fs.BoolVar(&refund, "refund", false, "refund the buyer instead of paying the seller")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(id) == "" {
		return printError(stderr, "--id is required")
	}
	key, err := loadKey(keyFile)
	if err != nil {
		return handleError(stderr, err)
	}
	result, err := sendSignedCall(key, types.CallResolve, nil, types.ResolvePayload{ID: strings.TrimSpace(id), Refund: refund})
	if err != nil {
		return handleError(stderr, err)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runOrderGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("order", stderr)
	var id string
	fs.StringVar(&id, "id", "", "order identifier")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(id) == "" {
		return printError(stderr, "--id is required")
	}
	result, rpcErr, err := rpcCall("orders_getOrder", map[string]string{"id": strings.TrimSpace(id)}, false)
	if err != nil {
		return handleError(stderr, err)
	}
	if rpcErr != nil {
		return handleError(stderr, &rpcFailure{err: rpcErr})
	}
	writeRPCResult(stdout, result)
	return 0
}
