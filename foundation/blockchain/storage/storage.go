// Package storage handles all the lower level support for persisting the
// ledger. Every backend stores the same three collections: the chain, the
// wallet table and the pending transactions.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
)

// ErrStorage is wrapped by every failure produced by a storage backend.
var ErrStorage = errors.New("storage failure")

// Set of supported backends.
const (
	KindDisk    = "disk"
	KindBolt    = "bolt"
	KindLevelDB = "leveldb"
	KindMemory  = "memory"
)

// Names of the three collections. The disk backend appends .json.
const (
	chainKey   = "chain"
	walletsKey = "wallets"
	pendingKey = "pending"
)

// =============================================================================

// State represents the full set of data the ledger persists.
type State struct {
	Chain   []database.Block
	Wallets map[string]database.Wallet
	Pending []database.Tx
}

// Empty returns a state with non-nil empty collections.
func Empty() State {
	return State{
		Chain:   []database.Block{},
		Wallets: make(map[string]database.Wallet),
		Pending: []database.Tx{},
	}
}

// Store interface represents the behavior required to be implemented by any
// package providing support for persisting the ledger.
type Store interface {
	Initialize() error
	LoadState() (State, error)
	SaveState(state State) error
	Close() error
}

// EventHandler defines a function that is called when events occur in
// the processing of the storage.
type EventHandler func(v string, args ...any)

// New constructs the backend for the specified kind. The path is a directory
// for the disk and leveldb backends and a file for bolt.
func New(kind string, path string, evHandler EventHandler) (Store, error) {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	switch kind {
	case KindDisk:
		return NewDisk(path, evHandler), nil
	case KindBolt:
		return NewBolt(path, evHandler), nil
	case KindLevelDB:
		return NewLevelDB(path, evHandler), nil
	case KindMemory:
		return NewMemory(), nil
	}

	return nil, fmt.Errorf("%w: unknown store kind %q", ErrStorage, kind)
}

// =============================================================================

// normalize replaces nil collections with empty ones so callers never have
// to check.
func normalize(s State) State {
	if s.Chain == nil {
		s.Chain = []database.Block{}
	}
	if s.Wallets == nil {
		s.Wallets = make(map[string]database.Wallet)
	}
	if s.Pending == nil {
		s.Pending = []database.Tx{}
	}

	return s
}

// decode unmarshals the document for the named collection. An empty or
// corrupt document yields the zero value and is reported as a warning.
func decode[T any](name string, data []byte, evHandler EventHandler) T {
	var v T

	if len(bytes.TrimSpace(data)) == 0 {
		return v
	}

	if err := json.Unmarshal(data, &v); err != nil {
		evHandler("storage: LoadState: WARNING: %s: unable to parse, using empty default: %s", name, err)
		var zero T
		return zero
	}

	return v
}

// encode marshals the three collections in a human readable format.
func encode(s State) (map[string][]byte, error) {
	s = normalize(s)

	docs := make(map[string][]byte, 3)
	for name, v := range map[string]any{chainKey: s.Chain, walletsKey: s.Wallets, pendingKey: s.Pending} {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("%w: marshal %s: %s", ErrStorage, name, err)
		}
		docs[name] = data
	}

	return docs, nil
}

// load decodes the three collection documents into a state.
func load(docs map[string][]byte, evHandler EventHandler) State {
	return normalize(State{
		Chain:   decode[[]database.Block](chainKey, docs[chainKey], evHandler),
		Wallets: decode[map[string]database.Wallet](walletsKey, docs[walletsKey], evHandler),
		Pending: decode[[]database.Tx](pendingKey, docs[pendingKey], evHandler),
	})
}
