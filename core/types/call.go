package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// CallType identifies the operation a signed call performs.
type CallType byte

const (
	CallSubmit        CallType = 0x01 // Buyer places an order and funds escrow
	CallConfirm       CallType = 0x02 // Seller bonds an order (bonded workflow)
	CallHandOff       CallType = 0x03 // Seller hands goods to the shipper (bonded workflow)
	CallShip          CallType = 0x04
	CallDeliver       CallType = 0x05
	CallComplete      CallType = 0x06
	CallCancel        CallType = 0x07
	CallDispute       CallType = 0x08
	CallResolve       CallType = 0x09
	CallBankTransfer  CallType = 0x20
	CallTokenApprove  CallType = 0x30
	CallTokenTransfer CallType = 0x31
	CallTokenMint     CallType = 0x32
)

var callTypeNames = map[CallType]string{
	CallSubmit:        "submit",
	CallConfirm:       "confirm",
	CallHandOff:       "handOff",
	CallShip:          "ship",
	CallDeliver:       "deliver",
	CallComplete:      "complete",
	CallCancel:        "cancel",
	CallDispute:       "dispute",
	CallResolve:       "resolve",
	CallBankTransfer:  "bankTransfer",
	CallTokenApprove:  "tokenApprove",
	CallTokenTransfer: "tokenTransfer",
	CallTokenMint:     "tokenMint",
}

func (t CallType) String() string {
	if name, ok := callTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("call(0x%02x)", byte(t))
}

// ParseCallType resolves a call type from its canonical name.
func ParseCallType(name string) (CallType, bool) {
	for t, n := range callTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

var (
	ErrUnsigned        = errors.New("call: missing signature")
	ErrInvalidSigValue = errors.New("call: invalid signature recovery id")
)

// Call is a signed request to run one state transition. Value carries native
// value attached by the caller; Payload is the RLP encoding of the per-type
// parameters below.
type Call struct {
	ChainID uint64   `json:"chainId"`
	Type    CallType `json:"type"`
	Nonce   uint64   `json:"nonce"`
	Value   *big.Int `json:"value"`
	Payload []byte   `json:"payload"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from *common.Address
}

type unsignedCall struct {
	ChainID uint64
	Type    CallType
	Nonce   uint64
	Value   *big.Int
	Payload []byte
}

// SigHash returns the digest covered by the caller's signature.
func (c *Call) SigHash() (common.Hash, error) {
	value := c.Value
	if value == nil {
		value = new(big.Int)
	}
	encoded, err := rlp.EncodeToBytes(&unsignedCall{
		ChainID: c.ChainID,
		Type:    c.Type,
		Nonce:   c.Nonce,
		Value:   value,
		Payload: c.Payload,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// Hash identifies a signed call. It covers the signature as well.
func (c *Call) Hash() (common.Hash, error) {
	sigHash, err := c.SigHash()
	if err != nil {
		return common.Hash{}, err
	}
	if c.R == nil || c.S == nil || c.V == nil {
		return sigHash, nil
	}
	return crypto.Keccak256Hash(sigHash.Bytes(), c.R.Bytes(), c.S.Bytes(), c.V.Bytes()), nil
}

// Sign signs the call with the caller's secp256k1 key.
func (c *Call) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := c.SigHash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash.Bytes(), privKey)
	if err != nil {
		return err
	}
	c.R = new(big.Int).SetBytes(sig[:32])
	c.S = new(big.Int).SetBytes(sig[32:64])
	c.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	c.from = nil
	return nil
}

// From recovers the caller address from the signature.
func (c *Call) From() (common.Address, error) {
	if c.from != nil {
		return *c.from, nil
	}
	if c.R == nil || c.S == nil || c.V == nil {
		return common.Address{}, ErrUnsigned
	}
	v := c.V.Uint64()
	if v != 27 && v != 28 {
		return common.Address{}, ErrInvalidSigValue
	}
	hash, err := c.SigHash()
	if err != nil {
		return common.Address{}, err
	}
	rBytes, sBytes := c.R.Bytes(), c.S.Bytes()
	if len(rBytes) > 32 || len(sBytes) > 32 {
		return common.Address{}, fmt.Errorf("call: signature component too large")
	}
	sig := make([]byte, 65)
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = byte(v - 27)
	pubKey, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.PubkeyToAddress(*pubKey)
	c.from = &addr
	return addr, nil
}

// AttachedValue returns Value, treating nil as zero.
func (c *Call) AttachedValue() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(c.Value)
}

// EncodePayload RLP encodes call parameters.
func EncodePayload(v interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

// DecodePayload decodes the call payload into out.
func (c *Call) DecodePayload(out interface{}) error {
	if len(c.Payload) == 0 {
		return fmt.Errorf("call %s: empty payload", c.Type)
	}
	if err := rlp.DecodeBytes(c.Payload, out); err != nil {
		return fmt.Errorf("call %s: decode payload: %w", c.Type, err)
	}
	return nil
}

// SubmitPayload opens an order. Role fields are only honoured when the store
// assigns roles per order.
type SubmitPayload struct {
	ID             string
	BuyerNotice    []byte
	Reporter       common.Address
	ReporterNotice []byte
	Arbiter        common.Address
	ArbiterNotice  []byte
	Price          *big.Int
	Shipping       *big.Int
	Metadata       []byte
}

// OrderRefPayload addresses an order for transitions without extra data.
type OrderRefPayload struct {
	ID string
}

// ShipmentPayload carries one sealed notice per party.
type ShipmentPayload struct {
	ID       string
	Buyer    []byte
	Reporter []byte
	Arbiter  []byte
}

// ResolvePayload records the arbiter's outcome for a disputed order.
type ResolvePayload struct {
	ID     string
	Refund bool
}

// TransferPayload moves native value, or a token when Token is set.
type TransferPayload struct {
	Token  string
	To     common.Address
	Amount *big.Int
}

// ApprovePayload sets a token allowance.
type ApprovePayload struct {
	Token   string
	Spender common.Address
	Amount  *big.Int
}

// MintPayload mints new token supply. Only the mint authority may call it.
type MintPayload struct {
	Token  string
	To     common.Address
	Amount *big.Int
}

// NewCall builds an unsigned call with an encoded payload.
func NewCall(chainID uint64, callType CallType, nonce uint64, value *big.Int, payload interface{}) (*Call, error) {
	encoded, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = new(big.Int)
	}
	return &Call{
		ChainID: chainID,
		Type:    callType,
		Nonce:   nonce,
		Value:   new(big.Int).Set(value),
		Payload: encoded,
	}, nil
}
