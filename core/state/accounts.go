package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"orderchain/core/types"
)

func accountStateKey(addr common.Address) []byte {
	return ethcrypto.Keccak256(addr.Bytes())
}

// GetAccount loads the account stored under addr. Unknown addresses yield a
// zero account.
func (m *Manager) GetAccount(addr common.Address) (*types.Account, error) {
	data, err := m.trie.Get(accountStateKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return types.EnsureAccount(nil), nil
	}
	stateAcc := new(gethtypes.StateAccount)
	if err := rlp.DecodeBytes(data, stateAcc); err != nil {
		return nil, err
	}
	account := &types.Account{Nonce: stateAcc.Nonce, Balance: big.NewInt(0)}
	if stateAcc.Balance != nil {
		account.Balance = stateAcc.Balance.ToBig()
	}
	return account, nil
}

// PutAccount persists the account under addr. Balances must fit in 256 bits.
func (m *Manager) PutAccount(addr common.Address, account *types.Account) error {
	account = types.EnsureAccount(account)
	if account.Balance.Sign() < 0 {
		return fmt.Errorf("account %s: negative balance", addr.Hex())
	}
	balance, overflow := uint256.FromBig(account.Balance)
	if overflow {
		return fmt.Errorf("account %s: balance overflows 256 bits", addr.Hex())
	}
	encoded, err := rlp.EncodeToBytes(&gethtypes.StateAccount{
		Nonce:    account.Nonce,
		Balance:  balance,
		Root:     gethtypes.EmptyRootHash,
		CodeHash: gethtypes.EmptyCodeHash.Bytes(),
	})
	if err != nil {
		return err
	}
	return m.trie.Update(accountStateKey(addr), encoded)
}
