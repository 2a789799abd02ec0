package core

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"orderchain/core/types"
	"orderchain/storage"
)

var (
	tipKey          = []byte("tip")
	genesisKey      = []byte("genesis")
	headerPrefix    = []byte("header:")
	heightKeyPrefix = []byte("height:")
)

// ErrBlockNotFound is returned when a header lookup misses.
var ErrBlockNotFound = errors.New("blockchain: block not found")

// Blockchain manages the sequence of block headers. Headers are stored as JSON
// under their hash with a height index and a tip pointer so the chain can be
// reloaded after a restart.
type Blockchain struct {
	db     storage.Database
	tip    *types.BlockHeader
	height uint64
	mu     sync.RWMutex
}

// NewBlockchain loads the chain stored in db. When db holds no genesis the
// supplied genesis header is written and becomes the tip. A nil genesis with an
// empty db is an error.
func NewBlockchain(db storage.Database, genesis *types.BlockHeader) (*Blockchain, error) {
	bc := &Blockchain{db: db}

	tipHash, err := db.Get(tipKey)
	switch {
	case err == nil:
		header, err := bc.headerByHash(common.BytesToHash(tipHash))
		if err != nil {
			return nil, fmt.Errorf("load tip: %w", err)
		}
		bc.tip = header
		bc.height = header.Height
		return bc, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	if genesis == nil {
		return nil, fmt.Errorf("blockchain: empty database and no genesis header")
	}
	if genesis.Height != 0 {
		return nil, fmt.Errorf("blockchain: genesis height must be 0, got %d", genesis.Height)
	}
	if err := bc.write(genesis); err != nil {
		return nil, err
	}
	hash := genesis.Hash()
	if err := db.Put(genesisKey, hash.Bytes()); err != nil {
		return nil, err
	}
	bc.tip = genesis
	bc.height = 0
	return bc, nil
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(heightKeyPrefix)+8)
	copy(key, heightKeyPrefix)
	binary.BigEndian.PutUint64(key[len(heightKeyPrefix):], height)
	return key
}

func headerKey(hash common.Hash) []byte {
	return append(append([]byte(nil), headerPrefix...), hash.Bytes()...)
}

func (bc *Blockchain) write(header *types.BlockHeader) error {
	encoded, err := json.Marshal(header)
	if err != nil {
		return err
	}
	hash := header.Hash()
	if err := bc.db.Put(headerKey(hash), encoded); err != nil {
		return err
	}
	if err := bc.db.Put(heightKey(header.Height), hash.Bytes()); err != nil {
		return err
	}
	return bc.db.Put(tipKey, hash.Bytes())
}

// AddBlock validates a new header against the tip and appends it.
func (bc *Blockchain) AddBlock(header *types.BlockHeader) error {
	if header == nil {
		return fmt.Errorf("blockchain: nil header")
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if header.ParentHash != bc.tip.Hash() {
		return fmt.Errorf("block parent hash mismatch")
	}
	if header.Height != bc.height+1 {
		return fmt.Errorf("block height %d does not extend tip %d", header.Height, bc.height)
	}
	if err := bc.write(header); err != nil {
		return err
	}
	bc.tip = header
	bc.height = header.Height
	return nil
}

func (bc *Blockchain) headerByHash(hash common.Hash) (*types.BlockHeader, error) {
	raw, err := bc.db.Get(headerKey(hash))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	var header types.BlockHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, err
	}
	return &header, nil
}

// GetHeaderByHash retrieves a header from the database by its hash.
func (bc *Blockchain) GetHeaderByHash(hash common.Hash) (*types.BlockHeader, error) {
	return bc.headerByHash(hash)
}

// GetHeaderByHeight retrieves a header by its height.
func (bc *Blockchain) GetHeaderByHeight(height uint64) (*types.BlockHeader, error) {
	raw, err := bc.db.Get(heightKey(height))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	return bc.headerByHash(common.BytesToHash(raw))
}

func (bc *Blockchain) GetHeight() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height
}

// Tip returns a copy of the latest header.
func (bc *Blockchain) Tip() *types.BlockHeader {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	header := *bc.tip
	return &header
}
