package genesis

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"orderchain/core/state"
	"orderchain/core/types"
	"orderchain/native/bank"
	"orderchain/native/orders"
	"orderchain/storage"
	"orderchain/storage/trie"
)

// BuildGenesisFromSpec writes the genesis state into db and returns the
// height-zero header committing to it.
func BuildGenesisFromSpec(spec *GenesisSpec, db storage.Database) (*types.BlockHeader, error) {
	if spec == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}
	if spec.storeConfig == nil {
		if err := spec.validate(); err != nil {
			return nil, err
		}
	}

	stateTrie, err := trie.NewTrie(db, nil)
	if err != nil {
		return nil, fmt.Errorf("init state trie: %w", err)
	}
	manager := state.NewManager(stateTrie)
	ledger := bank.NewLedger(manager, nil)
	parentRoot := stateTrie.Root()

	// 1) Tokens (sorted)
	tokens := append([]TokenSpec(nil), spec.Tokens...)
	sort.Slice(tokens, func(i, j int) bool {
		return strings.ToUpper(tokens[i].Symbol) < strings.ToUpper(tokens[j].Symbol)
	})
	for i := range tokens {
		token := &tokens[i]
		authority, err := parseOptionalAccount(strings.TrimSpace(token.MintAuthority))
		if err != nil {
			return nil, fmt.Errorf("token %q mintAuthority: %w", token.Symbol, err)
		}
		if err := manager.RegisterToken(token.Symbol, token.Name, token.Decimals, authority); err != nil {
			return nil, fmt.Errorf("register token %q: %w", token.Symbol, err)
		}
	}

	// 2) Allocations (outer: addresses sorted; inner: symbols sorted)
	allocAddresses := make([]string, 0, len(spec.Alloc))
	for addr := range spec.Alloc {
		allocAddresses = append(allocAddresses, addr)
	}
	sort.Strings(allocAddresses)
	for _, addrStr := range allocAddresses {
		addr, err := ParseAccount(addrStr)
		if err != nil {
			return nil, fmt.Errorf("alloc[%q]: %w", addrStr, err)
		}
		balances := spec.Alloc[addrStr]
		symbols := make([]string, 0, len(balances))
		for symbol := range balances {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			amount, err := parseAmountString(balances[symbol])
			if err != nil {
				return nil, fmt.Errorf("alloc[%q][%q]: %w", addrStr, symbol, err)
			}
			if amount.Sign() == 0 {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(symbol), NativeAllocKey) {
				if err := ledger.Credit(addr, amount); err != nil {
					return nil, fmt.Errorf("alloc[%q]: %w", addrStr, err)
				}
				continue
			}
			if err := allocateToken(manager, addrStr, symbol, amount); err != nil {
				return nil, err
			}
		}
	}

	// 3) Store configuration
	if err := orders.InitStore(manager, spec.StoreConfig()); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	// 4) Commit and set StateRoot
	newRoot, err := stateTrie.Commit(parentRoot, 0)
	if err != nil {
		return nil, fmt.Errorf("commit state: %w", err)
	}
	return &types.BlockHeader{
		Height:    0,
		Timestamp: uint64(spec.GenesisTimestamp().Unix()),
		StateRoot: newRoot,
	}, nil
}

func allocateToken(manager *state.Manager, addrStr, symbol string, amount *big.Int) error {
	addr, err := ParseAccount(addrStr)
	if err != nil {
		return err
	}
	meta, err := manager.Token(symbol)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("alloc[%q][%q]: undefined token", addrStr, symbol)
	}
	current, err := manager.TokenBalance(addr, symbol)
	if err != nil {
		return err
	}
	if err := manager.SetTokenBalance(addr, symbol, new(big.Int).Add(current, amount)); err != nil {
		return fmt.Errorf("alloc[%q][%q]: %w", addrStr, symbol, err)
	}
	meta.TotalSupply = new(big.Int).Add(meta.TotalSupply, amount)
	return manager.PutToken(meta)
}
