package state

import (
	"context"
	"errors"
	"math"
	"unicode"

	"github.com/ardanlabs/walletchain/foundation/blockchain/accounts"
	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
	"github.com/ardanlabs/walletchain/foundation/blockchain/digest"
)

// maxAddressLength bounds the size of a caller supplied address.
const maxAddressLength = 128

// NewWallet is what a caller provides to register a wallet. An empty
// address is generated, a nil balance gets the default starting balance and
// a zero creation time is set to now.
type NewWallet struct {
	Address   string
	Balance   *float64
	CreatedAt int64
}

// AddWallet registers a new wallet.
func (s *State) AddWallet(nw NewWallet) (database.Wallet, error) {
	if err := s.requireReady(); err != nil {
		return database.Wallet{}, err
	}

	if nw.Address != "" {
		if err := validateAddress("address", nw.Address); err != nil {
			return database.Wallet{}, err
		}
	}

	balance := s.genesis.DefaultBalance
	if nw.Balance != nil {
		balance = *nw.Balance
		if math.IsNaN(balance) || math.IsInf(balance, 0) {
			return database.Wallet{}, newError(KindInvalidFormat, "balance must be a finite number")
		}
		if balance < 0 {
			return database.Wallet{}, newError(KindInvalidAmount, "balance must not be negative")
		}
	}

	address := nw.Address
	if address == "" {
		var err error
		if address, err = digest.GenerateAddress(); err != nil {
			return database.Wallet{}, wrapError(KindCrypto, err, "unable to generate wallet address")
		}
	}

	createdAt := nw.CreatedAt
	if createdAt == 0 {
		createdAt = s.now().UnixMilli()
	}

	wallet := database.Wallet{
		Address:        address,
		Balance:        balance,
		CreatedAt:      createdAt,
		InitialBalance: balance,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rw.Lock()
	err := s.accounts.Add(wallet)
	s.rw.Unlock()

	if err != nil {
		if errors.Is(err, accounts.ErrExists) {
			return database.Wallet{}, newError(KindDuplicateWallet, "wallet %s already exists", address)
		}
		return database.Wallet{}, err
	}

	s.evHandler("state: AddWallet: wallet[%s] balance[%v]", address, balance)
	s.evHandler(`viewer: wallet: {"address":%q,"balance":%v}`, address, balance)

	if err := s.save(); err != nil {
		return database.Wallet{}, err
	}

	return wallet, nil
}

// CreateWallet registers a wallet with a generated address and the default
// starting balance.
func (s *State) CreateWallet() (database.Wallet, error) {
	return s.AddWallet(NewWallet{})
}

// RemoveWallet removes a wallet from the active table. A positive balance is
// first moved to the main wallet by a system transaction that is mined
// immediately. Pending transactions involving the wallet can never be mined
// once it's gone, so they are dropped from the pool.
func (s *State) RemoveWallet(ctx context.Context, address string) error {
	if err := s.requireReady(); err != nil {
		return err
	}

	if address == database.MainWalletAddress {
		return newError(KindInvalidOperation, "the main wallet can't be removed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, exists := s.accounts.Get(address)
	if !exists {
		return newError(KindNotFound, "wallet %s not found", address)
	}

	s.evHandler("state: RemoveWallet: started: wallet[%s] balance[%v]", address, wallet.Balance)
	defer s.evHandler("state: RemoveWallet: completed: wallet[%s]", address)

	if wallet.Balance > 0 {
		tx, err := database.NewTx(address, database.MainWalletAddress, wallet.Balance, true, s.now())
		if err != nil {
			return wrapError(KindCrypto, err, "unable to create sweep transaction")
		}

		s.evHandler("state: RemoveWallet: sweeping balance to main wallet: tx[%s]", tx)

		if _, err := s.mineAndCommit(ctx, []database.Tx{tx}); err != nil {
			return err
		}
	}

	s.rw.Lock()
	{
		if err := s.accounts.Remove(address, s.now().UnixMilli()); err != nil {
			s.rw.Unlock()
			return wrapError(KindNotFound, err, "unable to remove wallet")
		}

		for _, tx := range s.mempool.Copy() {
			if tx.Involves(address) {
				s.evHandler("state: RemoveWallet: dropping pending tx[%s]", tx)
				s.mempool.Delete(tx.Hash)
			}
		}
	}
	s.rw.Unlock()

	s.evHandler(`viewer: wallet-removed: {"address":%q}`, address)

	return s.save()
}

// =============================================================================

// GetWallet returns the active wallet for the address.
func (s *State) GetWallet(address string) (database.Wallet, error) {
	if err := s.requireReady(); err != nil {
		return database.Wallet{}, err
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	wallet, exists := s.accounts.Get(address)
	if !exists {
		return database.Wallet{}, newError(KindNotFound, "wallet %s not found", address)
	}

	return wallet, nil
}

// HasWallet reports whether an active wallet exists for the address.
func (s *State) HasWallet(address string) (bool, error) {
	if err := s.requireReady(); err != nil {
		return false, err
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	_, exists := s.accounts.Get(address)
	return exists, nil
}

// Wallets returns every active wallet ordered by creation time.
func (s *State) Wallets() ([]database.Wallet, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	return s.accounts.Active(), nil
}

// WalletCount returns the number of active wallets.
func (s *State) WalletCount() (int, error) {
	if err := s.requireReady(); err != nil {
		return 0, err
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	return s.accounts.Count(), nil
}

// WalletTransactionCount counts the mined and pending transactions where the
// wallet is the sender or the recipient.
func (s *State) WalletTransactionCount(address string) (int, error) {
	txs, err := s.TransactionsByWallet(address)
	if err != nil {
		return 0, err
	}

	return len(txs), nil
}

// =============================================================================

// validateAddress checks a caller supplied address is printable and of a
// sane length.
func validateAddress(field string, address string) error {
	if len(address) > maxAddressLength {
		return newError(KindInvalidFormat, "%s exceeds %d characters", field, maxAddressLength)
	}

	for _, r := range address {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return newError(KindInvalidFormat, "%s contains invalid characters", field)
		}
	}

	return nil
}
