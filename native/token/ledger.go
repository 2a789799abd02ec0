package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"orderchain/core/events"
	nhstate "orderchain/core/state"
	"orderchain/core/types"
)

const (
	EventTypeTransfer = "token.transfer"
	EventTypeApproval = "token.approval"
	EventTypeMint     = "token.mint"
)

var (
	ErrUnknownToken          = errors.New("token: not registered")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidAmount         = errors.New("token: invalid amount")
	ErrNotMintAuthority      = errors.New("token: caller is not the mint authority")
	errNilState              = errors.New("token: state not configured")
)

type ledgerState interface {
	Token(symbol string) (*nhstate.TokenMetadata, error)
	PutToken(meta *nhstate.TokenMetadata) error
	TokenBalance(addr common.Address, symbol string) (*big.Int, error)
	SetTokenBalance(addr common.Address, symbol string, amount *big.Int) error
	TokenAllowance(owner, spender common.Address, symbol string) (*big.Int, error)
	SetTokenAllowance(owner, spender common.Address, symbol string, amount *big.Int) error
}

// Address derives the deterministic contract-style address of a token.
func Address(symbol string) common.Address {
	hash := ethcrypto.Keccak256([]byte("token:" + nhstate.NormalizeSymbol(symbol)))
	return common.BytesToAddress(hash[12:])
}

type tokenEvent struct {
	kind   string
	symbol string
	from   common.Address
	to     common.Address
	amount *big.Int
}

func (e tokenEvent) EventType() string { return e.kind }

func (e tokenEvent) Event() *types.Event {
	attrs := map[string]string{
		"token":  e.symbol,
		"amount": e.amount.String(),
	}
	switch e.kind {
	case EventTypeApproval:
		attrs["owner"] = e.from.Hex()
		attrs["spender"] = e.to.Hex()
	default:
		attrs["from"] = e.from.Hex()
		attrs["to"] = e.to.Hex()
	}
	return &types.Event{Type: e.kind, Attributes: attrs}
}

// Ledger implements fungible token balances and allowances.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
}

// NewLedger returns a ledger over state. A nil emitter discards events.
func NewLedger(state ledgerState, emitter events.Emitter) *Ledger {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Ledger{state: state, emitter: emitter}
}

func (l *Ledger) metadata(symbol string) (*nhstate.TokenMetadata, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	meta, err := l.state.Token(symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, nhstate.NormalizeSymbol(symbol))
	}
	return meta, nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return fmt.Errorf("%w: exceeds 256 bits", ErrInvalidAmount)
	}
	return nil
}

// BalanceOf returns the token balance of addr.
func (l *Ledger) BalanceOf(symbol string, addr common.Address) (*big.Int, error) {
	meta, err := l.metadata(symbol)
	if err != nil {
		return nil, err
	}
	return l.state.TokenBalance(addr, meta.Symbol)
}

// Allowance returns how much spender may still pull from owner.
func (l *Ledger) Allowance(symbol string, owner, spender common.Address) (*big.Int, error) {
	meta, err := l.metadata(symbol)
	if err != nil {
		return nil, err
	}
	return l.state.TokenAllowance(owner, spender, meta.Symbol)
}

// TotalSupply returns the minted supply of the token.
func (l *Ledger) TotalSupply(symbol string) (*big.Int, error) {
	meta, err := l.metadata(symbol)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(meta.TotalSupply), nil
}

// Approve replaces the allowance of spender over owner's balance.
func (l *Ledger) Approve(symbol string, owner, spender common.Address, amount *big.Int) error {
	meta, err := l.metadata(symbol)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := l.state.SetTokenAllowance(owner, spender, meta.Symbol, amount); err != nil {
		return err
	}
	l.emitter.Emit(tokenEvent{kind: EventTypeApproval, symbol: meta.Symbol, from: owner, to: spender, amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount from the caller's balance.
func (l *Ledger) Transfer(symbol string, from, to common.Address, amount *big.Int) error {
	meta, err := l.metadata(symbol)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.move(meta.Symbol, from, to, amount)
}

// TransferFrom moves amount out of from's balance on behalf of spender and
// consumes the matching allowance.
func (l *Ledger) TransferFrom(symbol string, spender, from, to common.Address, amount *big.Int) error {
	meta, err := l.metadata(symbol)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance, err := l.state.TokenAllowance(from, spender, meta.Symbol)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s approved %s, needs %s", ErrInsufficientAllowance, from.Hex(), allowance, amount)
	}
	if err := l.move(meta.Symbol, from, to, amount); err != nil {
		return err
	}
	return l.state.SetTokenAllowance(from, spender, meta.Symbol, new(big.Int).Sub(allowance, amount))
}

// Mint creates supply. Only the token's mint authority may mint.
func (l *Ledger) Mint(symbol string, authority, to common.Address, amount *big.Int) error {
	meta, err := l.metadata(symbol)
	if err != nil {
		return err
	}
	if authority != meta.MintAuthority {
		return ErrNotMintAuthority
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	supply := new(big.Int).Add(meta.TotalSupply, amount)
	if err := checkAmount(supply); err != nil {
		return err
	}
	balance, err := l.state.TokenBalance(to, meta.Symbol)
	if err != nil {
		return err
	}
	if err := l.state.SetTokenBalance(to, meta.Symbol, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	meta.TotalSupply = supply
	if err := l.state.PutToken(meta); err != nil {
		return err
	}
	l.emitter.Emit(tokenEvent{kind: EventTypeMint, symbol: meta.Symbol, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

func (l *Ledger) move(symbol string, from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := l.state.TokenBalance(from, symbol)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), balance, amount)
	}
	if from != to {
		recipient, err := l.state.TokenBalance(to, symbol)
		if err != nil {
			return err
		}
		if err := l.state.SetTokenBalance(from, symbol, new(big.Int).Sub(balance, amount)); err != nil {
			return err
		}
		if err := l.state.SetTokenBalance(to, symbol, new(big.Int).Add(recipient, amount)); err != nil {
			return err
		}
	}
	l.emitter.Emit(tokenEvent{kind: EventTypeTransfer, symbol: symbol, from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}
