// Package mempool maintains the pool of transactions waiting to be mined.
package mempool

import (
	"errors"
	"sync"

	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
)

// ErrMissingHash is returned when a transaction without a hash is added.
var ErrMissingHash = errors.New("transaction has no hash")

// entry keeps the order a transaction arrived in next to the transaction.
type entry struct {
	seq uint64
	tx  database.Tx
}

// Mempool represents a cache of pending transactions keyed by their hash.
type Mempool struct {
	pool map[string]entry
	seq  uint64
	mu   sync.RWMutex
}

// New constructs a new empty mempool.
func New() *Mempool {
	return &Mempool{
		pool: make(map[string]entry),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool. A replaced
// transaction keeps its original position.
func (mp *Mempool) Upsert(tx database.Tx) (int, error) {
	if tx.Hash == "" {
		return 0, ErrMissingHash
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	e, exists := mp.pool[tx.Hash]
	if !exists {
		mp.seq++
		e.seq = mp.seq
	}
	e.tx = tx
	mp.pool[tx.Hash] = e

	return len(mp.pool), nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(hash string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, hash)
}

// Get returns the transaction with the specified hash.
func (mp *Mempool) Get(hash string) (database.Tx, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	e, exists := mp.pool[hash]
	return e.tx, exists
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]entry)
	mp.seq = 0
}

// Copy returns all the transactions in the order they arrived.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	entries := mp.entries()
	mp.mu.RUnlock()

	sortBySeq(entries)

	return values(entries)
}

// PickBest returns the next set of transactions for the next block, oldest
// timestamp first. Pass -1 for all the transactions.
func (mp *Mempool) PickBest(howMany int) []database.Tx {
	mp.mu.RLock()
	entries := mp.entries()
	mp.mu.RUnlock()

	sortByTimestamp(entries)

	if howMany >= 0 && howMany < len(entries) {
		entries = entries[:howMany]
	}

	return values(entries)
}

// =============================================================================

// entries returns the pool as a slice. The caller must hold a lock.
func (mp *Mempool) entries() []entry {
	entries := make([]entry, 0, len(mp.pool))
	for _, e := range mp.pool {
		entries = append(entries, e)
	}

	return entries
}

func values(entries []entry) []database.Tx {
	txs := make([]database.Tx, len(entries))
	for i, e := range entries {
		txs[i] = e.tx
	}

	return txs
}
