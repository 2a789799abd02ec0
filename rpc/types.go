package rpc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"orderchain/core/types"
	"orderchain/crypto"
	"orderchain/native/orders"
)

type OrderResult struct {
	ID        string `json:"id"`
	Sequence  uint64 `json:"sequence"`
	State     string `json:"state"`
	StateCode uint8  `json:"stateCode"`
	Workflow  string `json:"workflow"`

	Buyer          string `json:"buyer"`
	BuyerNotice    string `json:"buyerNotice,omitempty"`
	Reporter       string `json:"reporter,omitempty"`
	ReporterNotice string `json:"reporterNotice,omitempty"`
	Arbiter        string `json:"arbiter,omitempty"`
	ArbiterNotice  string `json:"arbiterNotice,omitempty"`

	Price    string `json:"price"`
	Shipping string `json:"shipping"`
	Total    string `json:"total"`
	Metadata string `json:"metadata,omitempty"`

	ShipmentBuyer    string `json:"shipmentBuyer,omitempty"`
	ShipmentReporter string `json:"shipmentReporter,omitempty"`
	ShipmentArbiter  string `json:"shipmentArbiter,omitempty"`

	SellerBond   string `json:"sellerBond"`
	ReporterBond string `json:"reporterBond"`

	SubmittedBlock    uint64 `json:"submittedBlock"`
	ConfirmedBlock    uint64 `json:"confirmedBlock,omitempty"`
	ShippedBlock      uint64 `json:"shippedBlock,omitempty"`
	DeliveredBlock    uint64 `json:"deliveredBlock,omitempty"`
	ClosedBlock       uint64 `json:"closedBlock,omitempty"`
	LastModifiedBlock uint64 `json:"lastModifiedBlock"`

	Resolution string `json:"resolution"`
}

type StoreConfigResult struct {
	StoreName      string `json:"storeName"`
	Seller         string `json:"seller"`
	Reporter       string `json:"reporter,omitempty"`
	ReporterNotice string `json:"reporterNotice,omitempty"`
	Arbiter        string `json:"arbiter,omitempty"`
	ArbiterNotice  string `json:"arbiterNotice,omitempty"`
	CancelBlocks   uint64 `json:"cancelBlocks"`
	DisputeBlocks  uint64 `json:"disputeBlocks"`
	Rail           string `json:"rail"`
	Token          string `json:"token,omitempty"`
	RoleMode       string `json:"roleMode"`
	Workflow       string `json:"workflow"`
	Escrow         string `json:"escrow"`
}

// PartyResult is a role holder and the public key its notices are sealed to.
type PartyResult struct {
	Address string `json:"address"`
	Hex     string `json:"hex"`
	Notice  string `json:"notice,omitempty"`
}

type TokenResult struct {
	Rail   string `json:"rail"`
	Symbol string `json:"symbol,omitempty"`
	Name   string `json:"name,omitempty"`
	Escrow string `json:"escrow"`
}

type SendCallResult struct {
	Hash   string        `json:"hash"`
	Height uint64        `json:"height"`
	Caller string        `json:"caller"`
	Events []types.Event `json:"events"`
	Order  *OrderResult  `json:"order,omitempty"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
	Balance string `json:"balance"`
}

type AllowanceResult struct {
	Token     string `json:"token"`
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

type NonceResult struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

type HeightResult struct {
	Height  uint64 `json:"height"`
	ChainID uint64 `json:"chainId"`
}

func formatAddress(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return crypto.FromCommon(addr).String()
}

func formatBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hexutil.Encode(b)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func orderResultFrom(o *orders.Order) *OrderResult {
	if o == nil {
		return nil
	}
	return &OrderResult{
		ID:                o.ID,
		Sequence:          o.Sequence,
		State:             o.State.String(),
		StateCode:         o.StateCode(),
		Workflow:          o.Workflow.String(),
		Buyer:             formatAddress(o.Buyer),
		BuyerNotice:       formatBytes(o.BuyerNotice),
		Reporter:          formatAddress(o.Reporter),
		ReporterNotice:    formatBytes(o.ReporterNotice),
		Arbiter:           formatAddress(o.Arbiter),
		ArbiterNotice:     formatBytes(o.ArbiterNotice),
		Price:             formatAmount(o.Price),
		Shipping:          formatAmount(o.Shipping),
		Total:             o.Total().String(),
		Metadata:          formatBytes(o.Metadata),
		ShipmentBuyer:     formatBytes(o.ShipmentBuyer),
		ShipmentReporter:  formatBytes(o.ShipmentReporter),
		ShipmentArbiter:   formatBytes(o.ShipmentArbiter),
		SellerBond:        formatAmount(o.SellerBond),
		ReporterBond:      formatAmount(o.ReporterBond),
		SubmittedBlock:    o.SubmittedBlock,
		ConfirmedBlock:    o.ConfirmedBlock,
		ShippedBlock:      o.ShippedBlock,
		DeliveredBlock:    o.DeliveredBlock,
		ClosedBlock:       o.ClosedBlock,
		LastModifiedBlock: o.LastModifiedBlock,
		Resolution:        o.Resolution.String(),
	}
}

func storeConfigResultFrom(cfg *orders.StoreConfig) StoreConfigResult {
	return StoreConfigResult{
		StoreName:      cfg.StoreName,
		Seller:         formatAddress(cfg.Seller),
		Reporter:       formatAddress(cfg.Reporter),
		ReporterNotice: formatBytes(cfg.ReporterNotice),
		Arbiter:        formatAddress(cfg.Arbiter),
		ArbiterNotice:  formatBytes(cfg.ArbiterNotice),
		CancelBlocks:   cfg.CancelBlocks,
		DisputeBlocks:  cfg.DisputeBlocks,
		Rail:           cfg.Rail.String(),
		Token:          cfg.Token,
		RoleMode:       cfg.RoleMode.String(),
		Workflow:       cfg.Workflow.String(),
		Escrow:         formatAddress(cfg.EscrowAddress()),
	}
}

func partyResultFrom(addr common.Address, notice []byte) PartyResult {
	result := PartyResult{Address: formatAddress(addr), Notice: formatBytes(notice)}
	if addr != (common.Address{}) {
		result.Hex = addr.Hex()
	}
	return result
}
