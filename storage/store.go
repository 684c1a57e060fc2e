// Package storage persists chain run histories.
//
// Information Hiding:
// - Storage backend implementation details hidden behind Store
// - Allows swapping between memory, JSON Lines files and SQLite without API changes
// - Each implementation encapsulates its own layout and durability rules

package storage

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/richinex/llmchain/chain"
)

// ErrRunNotFound is returned by Load for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Store writes and reads run histories.
type Store interface {
	chain.HistoryStore
	chain.HistoryLoader
	Close() error
}

// Open picks a store from the path: a .db, .sqlite or .sqlite3 file opens
// SQLite, a .jsonl file is a single-run session file, anything else is a
// directory of JSON Lines files.
func Open(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSqlite(path)
	case ".jsonl":
		return NewJSONLFile(path), nil
	default:
		return NewJSONLStore(path)
	}
}
