package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"orderchain/core"
	"orderchain/core/genesis"
	"orderchain/core/types"
	"orderchain/crypto"
	"orderchain/storage"
)

const (
	testChainID        = 7
	testOperatorSecret = "rpc-test-secret"
	testIssuer         = "orderchain-tests"
	testAudience       = "ordersd"
)

type testActor struct {
	key  *crypto.PrivateKey
	addr common.Address
}

func newTestActor(t testing.TB) testActor {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return testActor{key: key, addr: key.PubKey().Address().Common()}
}

type fixture struct {
	node   *core.Node
	server *Server
	http   *httptest.Server

	buyer, seller, shipper, arbiter testActor
}

func testGenesis(f *fixture) string {
	return fmt.Sprintf(`genesisTime: "2024-01-01T00:00:00Z"
chainId: %d
tokens:
  - symbol: USDX
    name: US Dollar X
    decimals: 6
alloc:
  "%s":
    native: "50"
    USDX: "20000000"
store:
  name: Bob's Widgets
  seller: "%s"
  cancelBlocks: 1000
  disputeBlocks: 500
  rail: token
  token: USDX
  roleMode: order
  workflow: direct
`, testChainID, f.buyer.addr.Hex(), f.seller.addr.Hex())
}

func newFixture(t testing.TB, mutate func(*ServerConfig)) *fixture {
	t.Helper()
	f := &fixture{
		buyer:   newTestActor(t),
		seller:  newTestActor(t),
		shipper: newTestActor(t),
		arbiter: newTestActor(t),
	}
	spec, err := genesis.ParseGenesisSpec([]byte(testGenesis(f)))
	require.NoError(t, err)

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db, spec)
	require.NoError(t, err)
	node.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	f.node = node

	cfg := ServerConfig{
		MaxBodyBytes: 1 << 16,
		Operator: OperatorAuth{
			Secret:   []byte(testOperatorSecret),
			Issuer:   testIssuer,
			Audience: testAudience,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(node, cfg, nil)
	require.NoError(t, err)
	f.server = srv
	f.http = httptest.NewServer(srv.Handler())
	t.Cleanup(f.http.Close)
	return f
}

type rpcReply struct {
	Status int
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

func (r *rpcReply) kind(t testing.TB) string {
	t.Helper()
	require.NotNil(t, r.Error, "expected an error reply")
	var data errorData
	require.NoError(t, json.Unmarshal(r.Error.Data, &data))
	return data.Kind
}

func (f *fixture) call(t testing.TB, method string, params interface{}, headers map[string]string) *rpcReply {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return f.post(t, body, headers)
}

func (f *fixture) post(t testing.TB, body []byte, headers map[string]string) *rpcReply {
	t.Helper()
	httpReq, err := http.NewRequest(http.MethodPost, f.http.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := f.http.Client().Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	reply := &rpcReply{Status: resp.StatusCode}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(reply))
	return reply
}

func (f *fixture) signedCall(t testing.TB, from testActor, callType types.CallType, value int64, payload interface{}) *types.Call {
	t.Helper()
	nonce, err := f.node.Nonce(from.addr)
	require.NoError(t, err)
	call, err := types.NewCall(testChainID, callType, nonce, big.NewInt(value), payload)
	require.NoError(t, err)
	require.NoError(t, call.Sign(from.key.PrivateKey))
	return call
}

func (f *fixture) send(t testing.TB, from testActor, callType types.CallType, payload interface{}) *rpcReply {
	t.Helper()
	return f.call(t, "orders_sendCall", f.signedCall(t, from, callType, 0, payload), nil)
}

func (f *fixture) submitPayload(id string, price int64) types.SubmitPayload {
	return types.SubmitPayload{
		ID:       id,
		Reporter: f.shipper.addr,
		Arbiter:  f.arbiter.addr,
		Price:    big.NewInt(price),
		Shipping: big.NewInt(0),
	}
}
