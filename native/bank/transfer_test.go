package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"orderchain/core/events"
	"orderchain/core/types"
)

type memState struct {
	accounts map[common.Address]*types.Account
}

func newMemState() *memState {
	return &memState{accounts: make(map[common.Address]*types.Account)}
}

func (m *memState) GetAccount(addr common.Address) (*types.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return types.EnsureAccount(nil), nil
	}
	return &types.Account{Nonce: acc.Nonce, Balance: new(big.Int).Set(acc.Balance)}, nil
}

func (m *memState) PutAccount(addr common.Address, acc *types.Account) error {
	m.accounts[addr] = &types.Account{Nonce: acc.Nonce, Balance: new(big.Int).Set(acc.Balance)}
	return nil
}

func TestTransferMovesBalance(t *testing.T) {
	st := newMemState()
	buf := &events.Buffer{}
	ledger := NewLedger(st, buf)
	alice := common.HexToAddress("0x0a")
	bob := common.HexToAddress("0x0b")

	if err := ledger.Credit(alice, big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(4)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	a, _ := ledger.Balance(alice)
	b, _ := ledger.Balance(bob)
	if a.Int64() != 6 || b.Int64() != 4 {
		t.Fatalf("unexpected balances alice=%s bob=%s", a, b)
	}
	evts := buf.Events()
	if len(evts) != 1 || evts[0].Type != EventTypeTransfer || evts[0].Attributes["amount"] != "4" {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestTransferInsufficient(t *testing.T) {
	ledger := NewLedger(newMemState(), nil)
	err := ledger.Transfer(common.HexToAddress("0x01"), common.HexToAddress("0x02"), big.NewInt(1))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTransferZeroIsNoop(t *testing.T) {
	ledger := NewLedger(newMemState(), nil)
	if err := ledger.Transfer(common.HexToAddress("0x01"), common.HexToAddress("0x02"), big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if err := ledger.Transfer(common.HexToAddress("0x01"), common.HexToAddress("0x02"), big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
