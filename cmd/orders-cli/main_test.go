package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"orderchain/core/types"
	"orderchain/crypto"
	"orderchain/native/orders/notice"
)

// fakeNode answers the read methods the CLI needs and captures sent calls.
type fakeNode struct {
	t       *testing.T
	chainID uint64
	nonce   uint64
	order   map[string]string
	methods []string
	sent    []*types.Call
	authed  []bool
}

func (f *fakeNode) call(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	f.methods = append(f.methods, method)
	f.authed = append(f.authed, requireAuth)
	switch method {
	case "chain_height":
		return json.RawMessage(fmt.Sprintf(`{"height":4,"chainId":%d}`, f.chainID)), nil, nil
	case "account_nonce":
		return json.RawMessage(fmt.Sprintf(`{"nonce":%d}`, f.nonce)), nil, nil
	case "orders_getOrder":
		if f.order == nil {
			return nil, &rpcError{Code: -32032, Message: "order not found"}, nil
		}
		raw, _ := json.Marshal(f.order)
		return raw, nil, nil
	case "orders_sendCall":
		call, ok := params.(*types.Call)
		if !ok {
			f.t.Fatalf("sendCall params should be a call, got %T", params)
		}
		f.sent = append(f.sent, call)
		return json.RawMessage(`{"hash":"0x01","height":5}`), nil, nil
	default:
		return json.RawMessage(`{"ok":true}`), nil, nil
	}
}

func withFakeNode(t *testing.T, node *fakeNode, key *crypto.PrivateKey) {
	t.Helper()
	node.t = t
	originalCall, originalLoad := rpcCall, loadKey
	rpcCall = node.call
	loadKey = func(string) (*crypto.PrivateKey, error) { return key, nil }
	t.Cleanup(func() {
		rpcCall = originalCall
		loadKey = originalLoad
	})
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestSubmitSignsCall(t *testing.T) {
	buyer := mustKey(t)
	reporter := mustKey(t)
	node := &fakeNode{chainID: 7, nonce: 3}
	withFakeNode(t, node, buyer)

	var stdout, stderr bytes.Buffer
	code := run([]string{
		"submit", "--key", "buyer.json", "--id", "order-1",
		"--price", "1000", "--shipping", "50", "--value", "1050",
		"--reporter", crypto.FromCommon(reporter.PubKey().Address().Common()).String(),
		"--reporter-notice", hexutil.Encode(reporter.PubKey().NoticeKey()),
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("submit failed: %s", stderr.String())
	}
	if len(node.sent) != 1 {
		t.Fatalf("expected one call, got %d", len(node.sent))
	}
	call := node.sent[0]
	if call.Type != types.CallSubmit || call.ChainID != 7 || call.Nonce != 3 {
		t.Fatalf("unexpected call header: type=%s chain=%d nonce=%d", call.Type, call.ChainID, call.Nonce)
	}
	if call.AttachedValue().Int64() != 1050 {
		t.Fatalf("unexpected attached value %s", call.AttachedValue())
	}
	from, err := call.From()
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != buyer.PubKey().Address().Common() {
		t.Fatalf("call signed by %s, want buyer", from.Hex())
	}
	var payload types.SubmitPayload
	if err := call.DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ID != "order-1" || payload.Price.Int64() != 1000 || payload.Shipping.Int64() != 50 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Reporter != reporter.PubKey().Address().Common() {
		t.Fatalf("reporter not carried through")
	}
	if !bytes.Equal(payload.BuyerNotice, buyer.PubKey().NoticeKey()) {
		t.Fatalf("buyer notice key should come from the signing key")
	}
	if !strings.Contains(stdout.String(), `"height": 5`) {
		t.Fatalf("result not printed: %s", stdout.String())
	}
}

func TestShipSealsNoticePerParty(t *testing.T) {
	seller := mustKey(t)
	buyer := mustKey(t)
	reporter := mustKey(t)
	node := &fakeNode{chainID: 7, order: map[string]string{
		"id":             "order-9",
		"state":          "submitted",
		"buyerNotice":    hexutil.Encode(buyer.PubKey().NoticeKey()),
		"reporterNotice": hexutil.Encode(reporter.PubKey().NoticeKey()),
	}}
	withFakeNode(t, node, seller)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"ship", "--key", "seller.json", "--id", "order-9", "--notice", "UPS 1Z999"}, &stdout, &stderr); code != 0 {
		t.Fatalf("ship failed: %s", stderr.String())
	}
	if len(node.sent) != 1 || node.sent[0].Type != types.CallShip {
		t.Fatalf("expected a ship call, got %+v", node.sent)
	}
	var payload types.ShipmentPayload
	if err := node.sent[0].DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	plain, err := notice.Open(buyer.PrivateKey, payload.Buyer)
	if err != nil || string(plain) != "UPS 1Z999" {
		t.Fatalf("buyer cannot open notice: %v %q", err, plain)
	}
	plain, err = notice.Open(reporter.PrivateKey, payload.Reporter)
	if err != nil || string(plain) != "UPS 1Z999" {
		t.Fatalf("reporter cannot open notice: %v %q", err, plain)
	}
	if len(payload.Arbiter) != 0 {
		t.Fatalf("no arbiter key registered, notice should be empty")
	}
}

func TestShipUnknownOrder(t *testing.T) {
	node := &fakeNode{chainID: 7}
	withFakeNode(t, node, mustKey(t))

	var stdout, stderr bytes.Buffer
	if code := run([]string{"hand-off", "--key", "k", "--id", "nope", "--notice", "x"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(stderr.String(), "order not found") {
		t.Fatalf("rpc error not reported: %s", stderr.String())
	}
	if len(node.sent) != 0 {
		t.Fatalf("no call should be sent")
	}
}

func TestMineRequiresAuth(t *testing.T) {
	node := &fakeNode{chainID: 7}
	withFakeNode(t, node, nil)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"mine", "--blocks", "3"}, &stdout, &stderr); code != 0 {
		t.Fatalf("mine failed: %s", stderr.String())
	}
	if len(node.methods) != 1 || node.methods[0] != "chain_mine" || !node.authed[0] {
		t.Fatalf("mine should call chain_mine with auth, got %v %v", node.methods, node.authed)
	}
}

func TestArgValidation(t *testing.T) {
	node := &fakeNode{chainID: 7}
	withFakeNode(t, node, mustKey(t))

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "Usage"},
		{"unknown", []string{"frobnicate"}, "Unknown command"},
		{"submit without id", []string{"submit", "--price", "1"}, "--id is required"},
		{"submit bad price", []string{"submit", "--id", "a", "--price", "1.5"}, "--price must be"},
		{"submit bad reporter", []string{"submit", "--id", "a", "--price", "1", "--reporter", "nope"}, "--reporter"},
		{"deliver without id", []string{"deliver"}, "--id is required"},
		{"ship without notice", []string{"ship", "--id", "a"}, "--notice is required"},
		{"transfer zero", []string{"transfer", "--to", "0x00000000000000000000000000000000000000b1", "--amount", "0"}, "must be positive"},
		{"mine zero", []string{"mine", "--blocks", "0"}, "--blocks must be positive"},
		{"rpc flag", []string{"--rpc"}, "missing value for --rpc"},
		{"positional", []string{"order", "--id", "a", "extra"}, "unexpected positional"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tc.args, &stdout, &stderr); code != 1 {
				t.Fatalf("expected exit 1, got %d", code)
			}
			if !strings.Contains(stderr.String(), tc.want) {
				t.Fatalf("stderr %q does not mention %q", stderr.String(), tc.want)
			}
		})
	}
	if len(node.sent) != 0 {
		t.Fatalf("invalid input must not reach the node")
	}
}

func TestApplyGlobalFlags(t *testing.T) {
	original := rpcEndpoint
	t.Cleanup(func() { rpcEndpoint = original })

	rest, err := applyGlobalFlags([]string{"--rpc=http://node:9000", "balance", "--address", "x"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rpcEndpoint != "http://node:9000" || len(rest) != 3 || rest[0] != "balance" {
		t.Fatalf("unexpected result %q %v", rpcEndpoint, rest)
	}
}
