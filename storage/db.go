package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	syndtr "github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// Database is the key-value store backing the node. Raw Put/Get access is used
// for chain metadata (head pointer, block headers) while TrieDB exposes the
// node database the state trie commits into.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	TrieDB() *triedb.Database
	Close()
}

type backend struct {
	kv     ethdb.Database
	trieDB *triedb.Database
}

func newBackend(kv ethdb.KeyValueStore) backend {
	db := rawdb.NewDatabase(kv)
	return backend{
		kv:     db,
		trieDB: triedb.NewDatabase(db, triedb.HashDefaults),
	}
}

func (b backend) Put(key []byte, value []byte) error {
	return b.kv.Put(key, value)
}

func (b backend) Get(key []byte) ([]byte, error) {
	value, err := b.kv.Get(key)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (b backend) TrieDB() *triedb.Database {
	return b.trieDB
}

func (b backend) close() {
	_ = b.trieDB.Close()
	_ = b.kv.Close()
}

func isNotFound(err error) bool {
	if errors.Is(err, syndtr.ErrNotFound) {
		return true
	}
	return err != nil && err.Error() == "not found"
}

// --- In-Memory DB (for tests and ephemeral nodes) ---

type MemDB struct {
	backend
}

func NewMemDB() *MemDB {
	return &MemDB{backend: newBackend(memorydb.New())}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	db.close()
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	backend
}

const (
	levelDBCacheMB   = 64
	levelDBHandles   = 256
	levelDBNamespace = "orderchain/db/"
)

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := leveldb.New(path, levelDBCacheMB, levelDBHandles, levelDBNamespace, false)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{backend: newBackend(kv)}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.close()
}
