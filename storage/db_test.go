package storage

import (
	"errors"
	"testing"
)

func TestMemDBPutGet(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("head"), []byte{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("head"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string([]byte{1, 2, 3}) {
		t.Fatalf("unexpected value %x", got)
	}
	if db.TrieDB() == nil {
		t.Fatalf("expected trie database")
	}
}

func TestLevelDBNotFoundMapped(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
