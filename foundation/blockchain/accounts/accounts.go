// Package accounts maintains wallet balances and other wallet information.
package accounts

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
)

// Set of errors returned by the wallet table.
var (
	ErrExists              = errors.New("wallet already exists")
	ErrNotFound            = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Accounts manages the wallet table. Removed wallets keep their record so
// the chain can always be replayed, but they are hidden from the active view.
type Accounts struct {
	wallets map[string]database.Wallet
	mu      sync.RWMutex
}

// New constructs the wallet table from the specified records.
func New(wallets map[string]database.Wallet) *Accounts {
	act := Accounts{
		wallets: make(map[string]database.Wallet, len(wallets)),
	}

	for addr, w := range wallets {
		act.wallets[addr] = w
	}

	return &act
}

// Reset puts every balance back to the balance it was registered with. This
// is the starting point for replaying the chain.
func (act *Accounts) Reset() {
	act.mu.Lock()
	defer act.mu.Unlock()

	for addr, w := range act.wallets {
		w.Balance = w.InitialBalance
		act.wallets[addr] = w
	}
}

// Clone makes a copy of the current accounts.
func (act *Accounts) Clone() *Accounts {
	return New(act.Copy())
}

// Copy makes a copy of every record, removed wallets included.
func (act *Accounts) Copy() map[string]database.Wallet {
	act.mu.RLock()
	defer act.mu.RUnlock()

	wallets := make(map[string]database.Wallet, len(act.wallets))
	for addr, w := range act.wallets {
		wallets[addr] = w
	}
	return wallets
}

// =============================================================================

// Add inserts a new wallet. An address that was ever registered, even if it
// was removed since, can't be used again.
func (act *Accounts) Add(w database.Wallet) error {
	act.mu.Lock()
	defer act.mu.Unlock()

	if _, exists := act.wallets[w.Address]; exists {
		return fmt.Errorf("%w: %s", ErrExists, w.Address)
	}

	act.wallets[w.Address] = w

	return nil
}

// Remove marks the wallet as removed at the specified time.
func (act *Accounts) Remove(address string, removedAt int64) error {
	act.mu.Lock()
	defer act.mu.Unlock()

	w, exists := act.wallets[address]
	if !exists || !w.IsActive() {
		return fmt.Errorf("%w: %s", ErrNotFound, address)
	}

	w.RemovedAt = removedAt
	act.wallets[address] = w

	return nil
}

// Get returns the active wallet for the address.
func (act *Accounts) Get(address string) (database.Wallet, bool) {
	act.mu.RLock()
	defer act.mu.RUnlock()

	w, exists := act.wallets[address]
	if !exists || !w.IsActive() {
		return database.Wallet{}, false
	}

	return w, true
}

// Active returns the wallets that have not been removed, ordered by
// creation time.
func (act *Accounts) Active() []database.Wallet {
	act.mu.RLock()
	wallets := make([]database.Wallet, 0, len(act.wallets))
	for _, w := range act.wallets {
		if w.IsActive() {
			wallets = append(wallets, w)
		}
	}
	act.mu.RUnlock()

	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].CreatedAt == wallets[j].CreatedAt {
			return wallets[i].Address < wallets[j].Address
		}
		return wallets[i].CreatedAt < wallets[j].CreatedAt
	})

	return wallets
}

// Count returns the number of active wallets.
func (act *Accounts) Count() int {
	act.mu.RLock()
	defer act.mu.RUnlock()

	var n int
	for _, w := range act.wallets {
		if w.IsActive() {
			n++
		}
	}

	return n
}

// =============================================================================

// ValidateTransaction checks the transaction can be applied to the active
// wallets without changing anything.
func (act *Accounts) ValidateTransaction(tx database.Tx) error {
	act.mu.RLock()
	defer act.mu.RUnlock()

	return act.validate(tx, true)
}

// ApplyTransaction performs the business logic for applying a transaction
// to the wallet balances. Removed wallets are accepted since historical
// transactions may involve them.
func (act *Accounts) ApplyTransaction(tx database.Tx) error {
	act.mu.Lock()
	defer act.mu.Unlock()

	if err := act.validate(tx, false); err != nil {
		return err
	}

	from := act.wallets[tx.From]
	to := act.wallets[tx.To]

	from.Balance -= tx.Amount
	to.Balance += tx.Amount

	act.wallets[tx.From] = from
	act.wallets[tx.To] = to

	return nil
}

// validate checks both wallets exist and the sender can afford the amount.
// The caller must hold a lock.
func (act *Accounts) validate(tx database.Tx, activeOnly bool) error {
	if tx.From == tx.To {
		return fmt.Errorf("invalid transaction, sending money to yourself, from %s, to %s", tx.From, tx.To)
	}

	for _, addr := range []string{tx.From, tx.To} {
		w, exists := act.wallets[addr]
		if !exists || (activeOnly && !w.IsActive()) {
			return fmt.Errorf("%w: %s", ErrNotFound, addr)
		}
	}

	if balance := act.wallets[tx.From].Balance; tx.Amount > balance {
		return fmt.Errorf("%w: %s has %v, needs %v", ErrInsufficientBalance, tx.From, balance, tx.Amount)
	}

	return nil
}
