// Package state is the core API for the ledger and implements all the
// business rules and processing.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/walletchain/foundation/blockchain/accounts"
	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
	"github.com/ardanlabs/walletchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/walletchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/walletchain/foundation/blockchain/storage"
	lru "github.com/hashicorp/golang-lru"
)

// blockCacheSize is the number of blocks kept for lookups by hash.
const blockCacheSize = 256

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of the ledger.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for background mining.
type Worker interface {
	Shutdown()
	SignalStartMining()
}

// =============================================================================

// Config represents the configuration required to start the ledger.
type Config struct {
	Store     storage.Store
	Genesis   genesis.Genesis
	EvHandler EventHandler

	// Now replaces the clock. Leave nil to use time.Now.
	Now func() time.Time
}

// State manages the chain, the wallet table and the pending pool.
//
// Mutating operations are serialized by mu for their whole duration,
// proof of work included. The chain slice is only written while also
// holding rw, so readers never wait for a mining operation.
type State struct {
	mu sync.Mutex
	rw sync.RWMutex

	genesis   genesis.Genesis
	evHandler EventHandler
	now       func() time.Time

	store      storage.Store
	chain      []database.Block
	accounts   *accounts.Accounts
	mempool    *mempool.Mempool
	blockCache *lru.Cache
	ready      bool

	Worker Worker
}

// New constructs a new ledger. Initialize must be called before the ledger
// can be used.
func New(cfg Config) (*State, error) {
	if cfg.Store == nil {
		return nil, errors.New("state: a store is required")
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	gen := cfg.Genesis
	if gen == (genesis.Genesis{}) {
		gen = genesis.Default()
	}
	if err := gen.Validate(); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	cache, err := lru.New(blockCacheSize)
	if err != nil {
		return nil, fmt.Errorf("state: block cache: %w", err)
	}

	state := State{
		genesis:    gen,
		evHandler:  ev,
		now:        now,
		store:      cfg.Store,
		accounts:   accounts.New(nil),
		mempool:    mempool.New(),
		blockCache: cache,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start mining in the background.

	return &state, nil
}

// Initialize loads the ledger from the store. When the store holds no chain
// the genesis block is mined and the main wallet created with the reserve.
// The store is only written when something had to be created or dropped,
// so loading an existing ledger leaves the store untouched. Calling
// Initialize on a ready ledger does nothing.
func (s *State) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isReady() {
		return nil
	}

	s.evHandler("state: Initialize: started")
	defer s.evHandler("state: Initialize: completed")

	if err := s.store.Initialize(); err != nil {
		return wrapError(KindStorage, err, "unable to initialize storage")
	}

	loaded, err := s.store.LoadState()
	if err != nil {
		return wrapError(KindStorage, err, "unable to load state")
	}

	chain := loaded.Chain
	wallets := loaded.Wallets
	var dirty bool

	if len(chain) == 0 {
		s.evHandler("state: Initialize: empty chain: mining genesis block: difficulty[%d]", s.genesis.Difficulty)

		block, err := database.NewGenesisBlock(ctx, s.genesis.Timestamp, s.genesis.Difficulty, s.evHandler)
		if err != nil {
			return s.miningError(err)
		}
		chain = []database.Block{block}
		dirty = true
	}

	if _, exists := wallets[database.MainWalletAddress]; !exists {
		s.evHandler("state: Initialize: creating main wallet: reserve[%v]", s.genesis.Reserve)

		wallets[database.MainWalletAddress] = database.Wallet{
			Address:        database.MainWalletAddress,
			Balance:        s.genesis.Reserve,
			CreatedAt:      s.genesis.Timestamp,
			IsMainWallet:   true,
			InitialBalance: s.genesis.Reserve,
		}
		dirty = true
	}

	pool := mempool.New()
	for _, tx := range loaded.Pending {
		if _, err := pool.Upsert(tx); err != nil {
			s.evHandler("state: Initialize: WARNING: dropping pending tx[%s]: %s", tx, err)
			dirty = true
		}
	}

	s.rw.Lock()
	{
		s.chain = chain
		s.accounts = accounts.New(wallets)
		s.mempool = pool
		s.blockCache.Purge()
		s.ready = true
	}
	s.rw.Unlock()

	s.evHandler("state: Initialize: blocks[%d] wallets[%d] pending[%d]", len(chain), len(wallets), pool.Count())

	if !dirty {
		return nil
	}

	return s.save()
}

// Shutdown cleanly brings the ledger down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all mining activity before the store is closed.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Close()
}

// Genesis returns a copy of the genesis settings.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// =============================================================================

// isReady reports whether Initialize has completed.
func (s *State) isReady() bool {
	s.rw.RLock()
	defer s.rw.RUnlock()

	return s.ready
}

// requireReady returns NotInitialized until Initialize has completed.
func (s *State) requireReady() error {
	if !s.isReady() {
		return newError(KindNotInitialized, "ledger is not initialized")
	}
	return nil
}

// save writes the current snapshot to the store. The caller must hold mu so
// the snapshot can't change while it's taken. Memory is not rolled back when
// the save fails.
func (s *State) save() error {
	s.rw.RLock()
	snapshot := storage.State{
		Chain:   append([]database.Block(nil), s.chain...),
		Wallets: s.accounts.Copy(),
		Pending: s.mempool.Copy(),
	}
	s.rw.RUnlock()

	if err := s.store.SaveState(snapshot); err != nil {
		s.evHandler("state: save: ERROR: %s", err)
		return wrapError(KindStorage, err, "unable to persist ledger state")
	}

	return nil
}

// miningError converts a failure from the proof of work search.
func (s *State) miningError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return wrapError(KindCrypto, err, "unable to mine block")
}
