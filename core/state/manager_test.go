package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"orderchain/core/types"
	"orderchain/storage"
	"orderchain/storage/trie"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	return NewManager(tr)
}

func TestAccountRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	addr := common.HexToAddress("0x01")

	acc, err := mgr.GetAccount(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.Nonce != 0 || acc.Balance.Sign() != 0 {
		t.Fatalf("expected zero account, got %+v", acc)
	}

	if err := mgr.PutAccount(addr, &types.Account{Nonce: 4, Balance: big.NewInt(99)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	acc, err = mgr.GetAccount(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.Nonce != 4 || acc.Balance.Cmp(big.NewInt(99)) != 0 {
		t.Fatalf("unexpected account %+v", acc)
	}
}

func TestAccountRejectsOverflow(t *testing.T) {
	mgr := newTestManager(t)
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := mgr.PutAccount(common.HexToAddress("0x02"), &types.Account{Balance: huge}); err == nil {
		t.Fatalf("expected overflow error")
	}
}

func TestTokenRegistryAndBalances(t *testing.T) {
	mgr := newTestManager(t)
	authority := common.HexToAddress("0xaa")
	if err := mgr.RegisterToken("usdx", "USD Token", 6, authority); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := mgr.RegisterToken("USDX", "dup", 6, authority); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	meta, err := mgr.Token("UsDx")
	if err != nil || meta == nil {
		t.Fatalf("token lookup: %v %v", meta, err)
	}
	if meta.MintAuthority != authority || meta.Decimals != 6 {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	owner := common.HexToAddress("0x01")
	spender := common.HexToAddress("0x02")
	if err := mgr.SetTokenBalance(owner, "usdx", big.NewInt(500)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := mgr.SetTokenBalance(owner, "nope", big.NewInt(1)); err == nil {
		t.Fatalf("expected unknown token error")
	}
	if err := mgr.SetTokenAllowance(owner, spender, "usdx", big.NewInt(70)); err != nil {
		t.Fatalf("set allowance: %v", err)
	}
	bal, _ := mgr.TokenBalance(owner, "USDX")
	allowance, _ := mgr.TokenAllowance(owner, spender, "USDX")
	if bal.Int64() != 500 || allowance.Int64() != 70 {
		t.Fatalf("unexpected balance %s allowance %s", bal, allowance)
	}
	reverse, _ := mgr.TokenAllowance(spender, owner, "USDX")
	if reverse.Sign() != 0 {
		t.Fatalf("allowance must be directional")
	}
}

func TestKVHelpers(t *testing.T) {
	mgr := newTestManager(t)
	party := common.HexToAddress("0x03")
	if string(OrderPartyEntryKey(party, 1)) == string(OrderPartyEntryKey(party, 2)) {
		t.Fatalf("party entries must have distinct keys")
	}
	if err := mgr.KVPut(OrderPartyEntryKey(party, 1), "a"); err != nil {
		t.Fatalf("put entry: %v", err)
	}
	var id string
	if ok, err := mgr.KVGet(OrderPartyEntryKey(party, 1), &id); err != nil || !ok || id != "a" {
		t.Fatalf("unexpected entry %q ok=%v err=%v", id, ok, err)
	}
	var count uint64
	if ok, _ := mgr.KVGet(OrderPartyCountKey(party), &count); ok {
		t.Fatalf("count key must be independent of entry keys")
	}

	var seq uint64
	ok, err := mgr.KVGet(OrderSequenceKey(), &seq)
	if err != nil || ok {
		t.Fatalf("expected missing sequence, ok=%v err=%v", ok, err)
	}
	if err := mgr.KVPut(OrderSequenceKey(), uint64(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err = mgr.KVGet(OrderSequenceKey(), &seq)
	if err != nil || !ok || seq != 7 {
		t.Fatalf("unexpected sequence %d ok=%v err=%v", seq, ok, err)
	}
}
