package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"orderchain/core"
	"orderchain/core/types"
	"orderchain/crypto"
	"orderchain/services/order-indexer/store"
)

var (
	buyer  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	seller = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "indexer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	for i, kind := range []string{"orders.submitted", "orders.confirmed"} {
		_, err := st.Record(context.Background(), core.EventUpdate{
			Sequence: uint64(i + 1),
			CallHash: "0x0" + string(rune('1'+i)),
			Event: types.Event{
				Type:   kind,
				Height: uint64(i + 1),
				Attributes: map[string]string{
					"id":       "order-7",
					"sequence": "1",
					"state":    kind[len("orders."):],
					"buyer":    buyer.Hex(),
					"seller":   seller.Hex(),
					"total":    "42",
				},
			},
		})
		require.NoError(t, err)
	}
	return New(st, nil), st
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestOrderEvents(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/orders/order-7/events")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		OrderID string        `json:"orderId"`
		Events  []store.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "order-7", body.OrderID)
	require.Len(t, body.Events, 2)
	require.Equal(t, "orders.confirmed", body.Events[1].Type)

	rec = get(t, srv, "/orders/order-7")
	require.Equal(t, http.StatusOK, rec.Code)
	var order store.OrderRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	require.Equal(t, "confirmed", order.State)

	require.Equal(t, http.StatusNotFound, get(t, srv, "/orders/missing/events").Code)
	require.Equal(t, http.StatusNotFound, get(t, srv, "/orders/missing").Code)
}

func TestPartyOrders(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, addr := range []string{buyer.Hex(), crypto.FromCommon(buyer).String()} {
		rec := get(t, srv, "/parties/"+addr+"/orders")
		require.Equal(t, http.StatusOK, rec.Code, addr)
		var body struct {
			Address string                    `json:"address"`
			Orders  []store.PartyOrderSummary `json:"orders"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, crypto.FromCommon(buyer).String(), body.Address)
		require.Len(t, body.Orders, 1)
		require.Equal(t, []string{"buyer"}, body.Orders[0].Roles)
	}

	require.Equal(t, http.StatusBadRequest, get(t, srv, "/parties/not-an-address/orders").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, st := newTestServer(t)

	require.Equal(t, http.StatusOK, get(t, srv, "/healthz").Code)
	require.Equal(t, http.StatusOK, get(t, srv, "/metrics").Code)

	require.NoError(t, st.Close())
	require.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/healthz").Code)
}
