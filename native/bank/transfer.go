package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"orderchain/core/events"
	"orderchain/core/types"
)

const EventTypeTransfer = "bank.transfer"

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	errNilState            = errors.New("bank: state not configured")
)

type ledgerState interface {
	GetAccount(addr common.Address) (*types.Account, error)
	PutAccount(addr common.Address, account *types.Account) error
}

type transferEvent struct {
	from, to common.Address
	amount   *big.Int
}

func (transferEvent) EventType() string { return EventTypeTransfer }

func (e transferEvent) Event() *types.Event {
	return &types.Event{Type: EventTypeTransfer, Attributes: map[string]string{
		"from":   e.from.Hex(),
		"to":     e.to.Hex(),
		"amount": e.amount.String(),
	}}
}

// Ledger moves native value between accounts.
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

// Balance returns the native balance of addr.
func (l *Ledger) Balance(addr common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}

// Credit mints native value into addr. Only genesis allocation uses it.
func (l *Ledger) Credit(addr common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.state.PutAccount(addr, acc)
}

// Transfer moves amount from one account to another. Zero transfers are a
// no-op so callers can forward optional amounts unconditionally.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return nil
	}
	sender, err := l.state.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), sender.Balance, amount)
	}
	recipient, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, amount)
	recipient.Balance = new(big.Int).Add(recipient.Balance, amount)
	if err := l.state.PutAccount(from, sender); err != nil {
		return err
	}
	if err := l.state.PutAccount(to, recipient); err != nil {
		return err
	}
	l.emitter.Emit(transferEvent{from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}
