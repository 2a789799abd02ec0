package orders

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentRail moves value into and out of the store's escrow account. Both
// directions run inside the same state transition as the order update, so a
// rail error rolls the whole call back.
type PaymentRail interface {
	Kind() RailKind
	// Pull moves amount from payer into escrow. attached is the native value
	// the caller sent with the call.
	Pull(payer common.Address, amount, attached *big.Int) error
	// Push releases amount from escrow to payee.
	Push(payee common.Address, amount *big.Int) error
	// Held reports the escrow account's current balance on this rail.
	Held() (*big.Int, error)
}

type nativeLedger interface {
	Balance(addr common.Address) (*big.Int, error)
	Transfer(from, to common.Address, amount *big.Int) error
}

type tokenLedger interface {
	BalanceOf(symbol string, addr common.Address) (*big.Int, error)
	Transfer(symbol string, from, to common.Address, amount *big.Int) error
	TransferFrom(symbol string, spender, from, to common.Address, amount *big.Int) error
}

// NativeRail escrows the chain's native value. The caller must attach
// exactly the amount being pulled.
type NativeRail struct {
	ledger nativeLedger
	escrow common.Address
}

func NewNativeRail(ledger nativeLedger, escrow common.Address) *NativeRail {
	return &NativeRail{ledger: ledger, escrow: escrow}
}

func (r *NativeRail) Kind() RailKind { return RailNative }

func (r *NativeRail) Pull(payer common.Address, amount, attached *big.Int) error {
	if attached == nil {
		attached = new(big.Int)
	}
	if attached.Cmp(amount) != 0 {
		return fmt.Errorf("%w: attached value %s must equal %s", ErrFunding, attached, amount)
	}
	if err := r.ledger.Transfer(payer, r.escrow, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrFunding, err)
	}
	return nil
}

func (r *NativeRail) Push(payee common.Address, amount *big.Int) error {
	if err := r.ledger.Transfer(r.escrow, payee, amount); err != nil {
		return fmt.Errorf("%w: release to %s: %v", ErrFunding, payee.Hex(), err)
	}
	return nil
}

func (r *NativeRail) Held() (*big.Int, error) {
	return r.ledger.Balance(r.escrow)
}

// TokenRail escrows a fungible token. Buyers approve the escrow account
// beforehand and the rail pulls with TransferFrom.
type TokenRail struct {
	ledger tokenLedger
	symbol string
	escrow common.Address
}

func NewTokenRail(ledger tokenLedger, symbol string, escrow common.Address) *TokenRail {
	return &TokenRail{ledger: ledger, symbol: symbol, escrow: escrow}
}

func (r *TokenRail) Kind() RailKind { return RailToken }

func (r *TokenRail) Pull(payer common.Address, amount, attached *big.Int) error {
	if attached != nil && attached.Sign() != 0 {
		return fmt.Errorf("%w: token rail does not accept native value", ErrFunding)
	}
	if err := r.ledger.TransferFrom(r.symbol, r.escrow, payer, r.escrow, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrFunding, err)
	}
	return nil
}

func (r *TokenRail) Push(payee common.Address, amount *big.Int) error {
	if err := r.ledger.Transfer(r.symbol, r.escrow, payee, amount); err != nil {
		return fmt.Errorf("%w: release to %s: %v", ErrFunding, payee.Hex(), err)
	}
	return nil
}

func (r *TokenRail) Held() (*big.Int, error) {
	return r.ledger.BalanceOf(r.symbol, r.escrow)
}
