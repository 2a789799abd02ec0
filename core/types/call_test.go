package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestCallSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	call, err := NewCall(7, CallSubmit, 0, big.NewInt(3), &SubmitPayload{
		ID:       "testId",
		Price:    big.NewInt(2),
		Shipping: big.NewInt(1),
	})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}
	if err := call.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	from, err := call.From()
	if err != nil {
		t.Fatalf("from: %v", err)
	}
	if from != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("recovered %s, want %s", from.Hex(), crypto.PubkeyToAddress(key.PublicKey).Hex())
	}

	var decoded SubmitPayload
	if err := call.DecodePayload(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != "testId" || decoded.Price.Int64() != 2 || decoded.Shipping.Int64() != 1 {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestCallTamperChangesSigner(t *testing.T) {
	key, _ := crypto.GenerateKey()
	call, err := NewCall(1, CallDeliver, 4, nil, &OrderRefPayload{ID: "a"})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}
	if err := call.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw, err := json.Marshal(call)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var tampered Call
	if err := json.Unmarshal(raw, &tampered); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tampered.Nonce = 5
	from, err := tampered.From()
	if err == nil && from == crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("tampered call still recovers original signer")
	}
}

func TestCallUnsigned(t *testing.T) {
	call := &Call{Type: CallCancel}
	if _, err := call.From(); err != ErrUnsigned {
		t.Fatalf("expected ErrUnsigned, got %v", err)
	}
}

func TestParseCallType(t *testing.T) {
	for typ, name := range callTypeNames {
		got, ok := ParseCallType(name)
		if !ok || got != typ {
			t.Fatalf("ParseCallType(%q) = %v, %v", name, got, ok)
		}
	}
	if _, ok := ParseCallType("bogus"); ok {
		t.Fatalf("expected unknown call type")
	}
}
