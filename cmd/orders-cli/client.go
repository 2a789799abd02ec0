package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"orderchain/cmd/internal/passphrase"
	"orderchain/core/types"
	"orderchain/crypto"
)

const (
	rpcURLEnv        = "ORDERS_RPC_URL"
	operatorTokenEnv = "ORDERS_OPERATOR_TOKEN"
	keystorePassEnv  = "ORDERS_KEYSTORE_PASS"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = os.Getenv(operatorTokenEnv)
	rpcClient    = &http.Client{Timeout: 30 * time.Second}

	// Swapped in tests.
	rpcCall = callRPC
	loadKey = loadKeystore
)

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcURLEnv)); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func callRPC(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		token := strings.TrimSpace(rpcAuthToken)
		if token == "" {
			return nil, nil, fmt.Errorf("%s must be set for %s", operatorTokenEnv, method)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := rpcClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response (HTTP %d): %w", resp.StatusCode, err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func loadKeystore(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--key is required")
	}
	pass, err := passphrase.NewSource(keystorePassEnv, "Enter keystore passphrase: ").Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

// rpcFailure carries a JSON-RPC error back to the command that issued it.
type rpcFailure struct {
	err *rpcError
}

func (f *rpcFailure) Error() string {
	return fmt.Sprintf("RPC error %d: %s", f.err.Code, f.err.Message)
}

// query runs a read method and decodes its result into out.
func query(method string, params, out interface{}) error {
	result, rpcErr, err := rpcCall(method, params, false)
	if err != nil {
		return err
	}
	if rpcErr != nil {
		return &rpcFailure{err: rpcErr}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// sendSignedCall fetches the chain id and the caller nonce, signs the call
// and submits it.
func sendSignedCall(key *crypto.PrivateKey, callType types.CallType, value *big.Int, payload interface{}) (json.RawMessage, error) {
	var chain struct {
		ChainID uint64 `json:"chainId"`
	}
	if err := query("chain_height", nil, &chain); err != nil {
		return nil, err
	}
	caller := key.PubKey().Address().Common()
	var account struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := query("account_nonce", map[string]string{"address": caller.Hex()}, &account); err != nil {
		return nil, err
	}
	call, err := types.NewCall(chain.ChainID, callType, account.Nonce, value, payload)
	if err != nil {
		return nil, fmt.Errorf("build %s call: %w", callType, err)
	}
	if err := call.Sign(key.PrivateKey); err != nil {
		return nil, fmt.Errorf("sign %s call: %w", callType, err)
	}
	result, rpcErr, err := rpcCall("orders_sendCall", call, false)
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, &rpcFailure{err: rpcErr}
	}
	return result, nil
}

func handleError(stderr io.Writer, err error) int {
	if failure, ok := err.(*rpcFailure); ok {
		fmt.Fprintf(stderr, "Error: %s\n", failure.Error())
		if len(failure.err.Data) > 0 {
			fmt.Fprintf(stderr, "Details: %s\n", string(failure.err.Data))
		}
		return 1
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func writeRPCResult(stdout io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(stdout, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Fprintln(stdout, string(result))
		return
	}
	fmt.Fprintln(stdout, pretty.String())
}
