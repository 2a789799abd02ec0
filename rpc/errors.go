package rpc

import (
	"errors"
	"net/http"

	"orderchain/core"
	"orderchain/native/orders"
	"orderchain/native/token"
)

const (
	codeOrderUnauthorized = -32031
	codeOrderState        = -32032
	codeOrderTiming       = -32033
	codeOrderFunding      = -32034
	codeOrderDuplicate    = -32035
)

type errorData struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// classify maps a node error onto an HTTP status, JSON-RPC code and kind.
func classify(err error) (int, int, string) {
	kind := orders.KindOf(err)
	if kind == orders.KindInternal {
		switch {
		case errors.Is(err, token.ErrUnknownToken), errors.Is(err, core.ErrBlockNotFound):
			kind = orders.KindInvalid
		}
	}
	switch kind {
	case orders.KindAuthorization:
		return http.StatusForbidden, codeOrderUnauthorized, kind
	case orders.KindNotFound:
		return http.StatusNotFound, codeOrderState, kind
	case orders.KindState:
		return http.StatusConflict, codeOrderState, kind
	case orders.KindTiming:
		return http.StatusTooEarly, codeOrderTiming, kind
	case orders.KindFunding:
		return http.StatusPaymentRequired, codeOrderFunding, kind
	case orders.KindDuplicate:
		return http.StatusConflict, codeOrderDuplicate, kind
	case orders.KindInvalid:
		return http.StatusBadRequest, codeInvalidParams, kind
	default:
		return http.StatusInternalServerError, codeServerError, orders.KindInternal
	}
}

func writeNodeError(w http.ResponseWriter, id interface{}, message string, err error) {
	status, code, kind := classify(err)
	writeError(w, status, id, code, message, errorData{Kind: kind, Reason: err.Error()})
}

func writeParamError(w http.ResponseWriter, id interface{}, message string, err error) {
	data := errorData{Kind: orders.KindInvalid}
	if err != nil {
		data.Reason = err.Error()
	}
	writeError(w, http.StatusBadRequest, id, codeInvalidParams, message, data)
}
