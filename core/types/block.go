package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockHeader commits to the state after a block. The node produces one block
// per applied call, plus empty blocks when asked to mine.
type BlockHeader struct {
	Height     uint64      `json:"height"`
	Timestamp  uint64      `json:"timestamp"`
	ParentHash common.Hash `json:"parentHash"`
	StateRoot  common.Hash `json:"stateRoot"`
	CallHash   common.Hash `json:"callHash"`
}

// Hash returns the keccak256 hash of the RLP encoded header.
func (h *BlockHeader) Hash() common.Hash {
	encoded, err := rlp.EncodeToBytes(h)
	if err != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(encoded)
}
