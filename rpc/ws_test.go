package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"orderchain/core"
	"orderchain/core/types"
	"orderchain/native/orders"
)

func readUpdate(t *testing.T, ctx context.Context, conn *websocket.Conn) core.EventUpdate {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var update core.EventUpdate
	require.NoError(t, json.Unmarshal(data, &update))
	return update
}

func TestEventStreamBacklogAndLive(t *testing.T) {
	f := newFixture(t, nil)
	cfg, err := f.node.StoreConfig()
	require.NoError(t, err)

	decodeResult(t, f.send(t, f.buyer, types.CallTokenApprove, types.ApprovePayload{
		Token:   "USDX",
		Spender: cfg.EscrowAddress(),
		Amount:  big.NewInt(100),
	}), &SendCallResult{})
	decodeResult(t, f.send(t, f.buyer, types.CallSubmit, f.submitPayload("ws-1", 10)), &SendCallResult{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?prefix=orders."
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	backlog := readUpdate(t, ctx, conn)
	require.Equal(t, orders.EventTypeOrderSubmitted, backlog.Event.Type)
	require.Equal(t, "ws-1", backlog.Event.Attributes["id"])

	decodeResult(t, f.send(t, f.seller, types.CallShip, types.ShipmentPayload{ID: "ws-1"}), &SendCallResult{})
	live := readUpdate(t, ctx, conn)
	require.Equal(t, orders.EventTypeOrderShipped, live.Event.Type)
	require.Greater(t, live.Sequence, backlog.Sequence)

	// Resuming after the submit cursor skips it.
	resumed, _, err := websocket.Dial(ctx, wsURL+"&cursor="+backlog.Cursor, nil)
	require.NoError(t, err)
	defer resumed.Close(websocket.StatusNormalClosure, "")
	next := readUpdate(t, ctx, resumed)
	require.Equal(t, live.Sequence, next.Sequence)
}

func TestEventStreamRejectsBadCursor(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.http.URL, "http")+"/ws?cursor=abc", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	_, _, err = conn.Read(ctx)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}
