package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"orderchain/core/types"
	"orderchain/crypto"
	"orderchain/native/orders"
)

const maxListEvents = 1000

type orderIDParams struct {
	ID string `json:"id"`
}

type addressParams struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
}

type allowanceParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Token   string `json:"token,omitempty"`
}

type listEventsParams struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit"`
}

type mineParams struct {
	Blocks uint64 `json:"blocks"`
}

// decodeParams decodes the single parameter object. Unknown fields are
// rejected so typos surface as errors instead of silent defaults.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single parameter object, got %d", len(req.Params))
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// decodeOptionalParams is decodeParams for methods whose object may be omitted.
func decodeOptionalParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return nil
	}
	return decodeParams(req, out)
}

func parseAddressParam(field, raw string) (common.Address, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func (s *Server) handleSendCall(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeParamError(w, req.ID, "call parameter required", nil)
		return
	}
	var call types.Call
	if err := json.Unmarshal(req.Params[0], &call); err != nil {
		writeParamError(w, req.ID, "invalid call format", err)
		return
	}
	if call.R == nil || call.S == nil || call.V == nil {
		writeParamError(w, req.ID, "call must be signed", types.ErrUnsigned)
		return
	}

	receipt, order, err := s.node.Apply(r.Context(), &call)
	if err != nil {
		writeNodeError(w, req.ID, fmt.Sprintf("%s rejected", call.Type), err)
		return
	}
	caller := receipt.Caller
	if addr := common.HexToAddress(receipt.Caller); addr != (common.Address{}) {
		caller = formatAddress(addr)
	}
	writeResult(w, req.ID, SendCallResult{
		Hash:   receipt.CallHash,
		Height: receipt.Height,
		Caller: caller,
		Events: receipt.Events,
		Order:  orderResultFrom(order),
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params orderIDParams
	if err := decodeParams(req, &params); err != nil {
		writeParamError(w, req.ID, "invalid parameter object", err)
		return
	}
	if strings.TrimSpace(params.ID) == "" {
		writeParamError(w, req.ID, "id is required", nil)
		return
	}
	order, err := s.node.GetOrder(params.ID)
	if err != nil {
		writeNodeError(w, req.ID, "failed to load order", err)
		return
	}
	writeResult(w, req.ID, orderResultFrom(order))
}

func (s *Server) handleListByParty(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeParamError(w, req.ID, "invalid parameter object", err)
		return
	}
	addr, err := parseAddressParam("address", params.Address)
	if err != nil {
		writeParamError(w, req.ID, "invalid address", err)
		return
	}
	list, err := s.node.OrdersByParty(addr)
	if err != nil {
		writeNodeError(w, req.ID, "failed to list orders", err)
		return
	}
	out := make([]*OrderResult, 0, len(list))
	for _, order := range list {
		out = append(out, orderResultFrom(order))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) storeConfig(w http.ResponseWriter, req *RPCRequest) (*orders.StoreConfig, bool) {
	cfg, err := s.node.StoreConfig()
	if err != nil {
		writeNodeError(w, req.ID, "failed to load store config", err)
		return nil, false
	}
	return cfg, true
}

func (s *Server) handleGetSeller(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	cfg, ok := s.storeConfig(w, req)
	if !ok {
		return
	}
	writeResult(w, req.ID, partyResultFrom(cfg.Seller, nil))
}

// handleGetReporter returns the store reporter, or the reporter of a single
// order when an id is supplied.
func (s *Server) handleGetReporter(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleRole(w, req, func(cfg *orders.StoreConfig) PartyResult {
		return partyResultFrom(cfg.Reporter, cfg.ReporterNotice)
	}, func(o *orders.Order) PartyResult {
		return partyResultFrom(o.Reporter, o.ReporterNotice)
	})
}

func (s *Server) handleGetArbiter(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleRole(w, req, func(cfg *orders.StoreConfig) PartyResult {
		return partyResultFrom(cfg.Arbiter, cfg.ArbiterNotice)
	}, func(o *orders.Order) PartyResult {
		return partyResultFrom(o.Arbiter, o.ArbiterNotice)
	})
}

func (s *Server) handleRole(w http.ResponseWriter, req *RPCRequest, fromStore func(*orders.StoreConfig) PartyResult, fromOrder func(*orders.Order) PartyResult) {
	var params orderIDParams
	if err := decodeOptionalParams(req, &params); err != nil {
		writeParamError(w, req.ID, "invalid parameter object", err)
		return
	}
	if id := strings.TrimSpace(params.ID); id != "" {
		order, err := s.node.GetOrder(id)
		if err != nil {
			writeNodeError(w, req.ID, "failed to load order", err)
			return
		}
		writeResult(w, req.ID, fromOrder(order))
		return
	}
	cfg, ok := s.storeConfig(w, req)
	if !ok {
		return
	}
	writeResult(w, req.ID, fromStore(cfg))
}

func (s *Server) handleToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	cfg, ok := s.storeConfig(w, req)
	if !ok {
		return
	}
	result := TokenResult{Rail: cfg.Rail.String(), Escrow: formatAddress(cfg.EscrowAddress())}
	if cfg.Rail == orders.RailToken {
		meta, err := s.node.Token(cfg.Token)
		if err != nil {
			writeNodeError(w, req.ID, "failed to load token", err)
			return
		}
		result.Symbol = meta.Symbol
		result.Name = meta.Name
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleStoreName(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	cfg, ok := s.storeConfig(w, req)
	if !ok {
		return
	}
	writeResult(w, req.ID, cfg.StoreName)
}

func (s *Server) handleOrderCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	count, err := s.node.OrderCount()
	if err != nil {
		writeNodeError(w, req.ID, "failed to load order count", err)
		return
	}
	writeResult(w, req.ID, count)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	cfg, ok := s.storeConfig(w, req)
	if !ok {
		return
	}
	writeResult(w, req.ID, storeConfigResultFrom(cfg))
}

func (s *Server) handleEscrowHeld(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	held, err := s.node.EscrowHeld()
	if err != nil {
		writeNodeError(w, req.ID, "failed to compute escrow", err)
		return
	}
	writeResult(w, req.ID, held.String())
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listEventsParams
	if err := decodeOptionalParams(req, &params); err != nil {
		writeParamError(w, req.ID, "invalid parameter object", err)
		return
	}
	if params.Limit < 0 {
		writeParamError(w, req.ID, "limit must not be negative", nil)
		return
	}
	if params.Limit == 0 || params.Limit > maxListEvents {
		params.Limit = maxListEvents
	}
	writeResult(w, req.ID, s.node.ListEvents(strings.TrimSpace(params.Prefix), params.Limit))
}

func (s *Server) handleChainHeight(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, HeightResult{Height: s.node.Height(), ChainID: s.node.ChainID()})
}

func (s *Server) handleChainMine(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mineParams
	if err := decodeParams(req, &params); err != nil {
		writeParamError(w, req.ID, "invalid parameter object", err)
		return
	}
	height, err := s.node.MineBlocks(params.Blocks)
	if err != nil {
		writeNodeError(w, req.ID, "failed to mine blocks", err)
		return
	}
	s.logger.Info("mined blocks", "blocks", params.Blocks, "height", height)
	writeResult(w, req.ID, HeightResult{Height: height, ChainID: s.node.ChainID()})
}

func (s *Server) handleBankBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeParamError(w, req.ID, "invalid parameter object", err)
		return
	}
	addr, err := parseAddressParam("address", params.Address)
	if err != nil {
		writeParamError(w, req.ID, "invalid address", err)
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		writeNodeError(w, req.ID, "failed to load balance", err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: formatAddress(addr), Balance: balance.String()})
}

// resolveToken falls back to the store's token when the caller names none.
func (s *Server) resolveToken(w http.ResponseWriter, req *RPCRequest, symbol string) (string, bool) {
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		return symbol, true
	}
	cfg, ok := s.storeConfig(w, req)
	if !ok {
		return "", false
	}
	if cfg.Rail != orders.RailToken {
		writeParamError(w, req.ID, "token is required for a native rail store", nil)
		return "", false
	}
	return cfg.Token, true
}

func (s *Server) handleTokenBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeParamError(w, req.ID, "invalid parameter object", err)
		return
	}
	addr, err := parseAddressParam("address", params.Address)
	if err != nil {
		writeParamError(w, req.ID, "invalid address", err)
		return
	}
	symbol, ok := s.resolveToken(w, req, params.Token)
	if !ok {
		return
	}
	balance, err := s.node.TokenBalance(symbol, addr)
	if err != nil {
		writeNodeError(w, req.ID, "failed to load token balance", err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Address: formatAddress(addr), Token: symbol, Balance: balance.String()})
}

func (s *Server) handleTokenAllowance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params allowanceParams
	if err := decodeParams(req, &params); err != nil {
		writeParamError(w, req.ID, "invalid parameter object", err)
		return
	}
	owner, err := parseAddressParam("owner", params.Owner)
	if err != nil {
		writeParamError(w, req.ID, "invalid owner", err)
		return
	}
	spender, err := parseAddressParam("spender", params.Spender)
	if err != nil {
		writeParamError(w, req.ID, "invalid spender", err)
		return
	}
	symbol, ok := s.resolveToken(w, req, params.Token)
	if !ok {
		return
	}
	allowance, err := s.node.Allowance(symbol, owner, spender)
	if err != nil {
		writeNodeError(w, req.ID, "failed to load allowance", err)
		return
	}
	writeResult(w, req.ID, AllowanceResult{
		Token:     symbol,
		Owner:     formatAddress(owner),
		Spender:   formatAddress(spender),
		Allowance: allowance.String(),
	})
}

func (s *Server) handleAccountNonce(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeParamError(w, req.ID, "invalid parameter object", err)
		return
	}
	addr, err := parseAddressParam("address", params.Address)
	if err != nil {
		writeParamError(w, req.ID, "invalid address", err)
		return
	}
	nonce, err := s.node.Nonce(addr)
	if err != nil {
		writeNodeError(w, req.ID, "failed to load nonce", err)
		return
	}
	writeResult(w, req.ID, NonceResult{Address: formatAddress(addr), Nonce: nonce})
}
