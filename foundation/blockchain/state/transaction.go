package state

import (
	"encoding/json"
	"math"

	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
)

// NewTx is what a caller provides to submit a transfer.
type NewTx struct {
	From                string
	To                  string
	Amount              float64
	IsSystemTransaction bool
}

// CreateTransaction validates the transfer and adds it to the pending pool.
// Balances are not touched until the transaction is mined.
func (s *State) CreateTransaction(nt NewTx) (database.Tx, error) {
	if err := s.requireReady(); err != nil {
		return database.Tx{}, err
	}

	tx, err := s.createTransaction(nt)
	if err != nil {
		return database.Tx{}, err
	}

	// Let the background miner know there is work. This happens after the
	// lock is released since the miner needs it.
	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return tx, nil
}

func (s *State) createTransaction(nt NewTx) (database.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateNewTx(nt); err != nil {
		s.evHandler("state: CreateTransaction: REJECTED: %s->%s:%v: %s", nt.From, nt.To, nt.Amount, err)
		return database.Tx{}, err
	}

	tx, err := database.NewTx(nt.From, nt.To, nt.Amount, nt.IsSystemTransaction, s.now())
	if err != nil {
		return database.Tx{}, wrapError(KindCrypto, err, "unable to hash transaction")
	}

	s.rw.Lock()
	n, err := s.mempool.Upsert(tx)
	s.rw.Unlock()

	if err != nil {
		return database.Tx{}, wrapError(KindCrypto, err, "unable to add transaction to the pool")
	}

	s.evHandler("state: CreateTransaction: tx[%s] pending[%d]", tx, n)
	if data, err := json.Marshal(tx); err == nil {
		s.evHandler("viewer: tx: %s", string(data))
	}

	if err := s.save(); err != nil {
		return database.Tx{}, err
	}

	return tx, nil
}

// validateNewTx checks the transfer in a fixed order so the same input always
// produces the same error: format, required fields, amount, self transfer,
// wallet existence, main wallet permission and finally balance. The caller
// must hold mu.
func (s *State) validateNewTx(nt NewTx) error {
	if math.IsNaN(nt.Amount) || math.IsInf(nt.Amount, 0) {
		return newError(KindInvalidFormat, "amount must be a finite number")
	}

	if nt.From != "" {
		if err := validateAddress("from", nt.From); err != nil {
			return err
		}
	}

	if nt.To != "" {
		if err := validateAddress("to", nt.To); err != nil {
			return err
		}
	}

	switch {
	case nt.From == "":
		return newError(KindMissingField, "from is required")
	case nt.To == "":
		return newError(KindMissingField, "to is required")
	}

	if !(nt.Amount > 0) {
		return newError(KindInvalidAmount, "amount must be a positive number")
	}

	// Self transfer is checked ahead of wallet existence. A transfer from an
	// unknown wallet to itself reports SelfTransfer rather than InvalidWallet,
	// while format, missing field and amount failures still come first.
	if nt.From == nt.To {
		return newError(KindSelfTransfer, "sending money to yourself is not allowed")
	}

	from, exists := s.accounts.Get(nt.From)
	if !exists {
		return newError(KindInvalidWallet, "sender wallet %s does not exist", nt.From)
	}

	if _, exists := s.accounts.Get(nt.To); !exists {
		return newError(KindInvalidWallet, "recipient wallet %s does not exist", nt.To)
	}

	if from.IsMainWallet && !nt.IsSystemTransaction {
		return newError(KindForbidden, "transfers from the main wallet are reserved for the system")
	}

	if nt.Amount > from.Balance {
		return newError(KindInsufficientFunds, "wallet %s has insufficient funds", nt.From)
	}

	return nil
}
