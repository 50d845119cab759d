package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/walletchain/foundation/blockchain/digest"
	"github.com/google/uuid"
)

// TxStatus represents where a transaction is in its lifecycle.
type TxStatus string

// Set of transaction states.
const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
)

// =============================================================================

// Tx is the transactional information between two wallets.
type Tx struct {
	Hash                string   `json:"hash"`                // Hash of the from, to, amount, timestamp and nonce fields.
	From                string   `json:"from"`                // Wallet sending the funds.
	To                  string   `json:"to"`                  // Wallet receiving the funds.
	Amount              float64  `json:"amount"`              // Monetary value moved by this transaction.
	Timestamp           int64    `json:"timestamp"`           // Time the transaction was received in epoch milliseconds.
	Nonce               string   `json:"nonce"`               // Random value so identical transfers hash differently.
	Status              TxStatus `json:"status"`              // Pending until the transaction is mined.
	IsSystemTransaction bool     `json:"isSystemTransaction"` // Originated by the ledger, allowed to debit the main wallet.
}

// txContent is the fixed order set of fields hashed to produce the
// transaction hash.
type txContent struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
	Nonce     string  `json:"nonce"`
}

// NewTx constructs a new pending transaction, stamping the timestamp, a
// random nonce and the hash.
func NewTx(from string, to string, amount float64, isSystem bool, now time.Time) (Tx, error) {
	tx := Tx{
		From:                from,
		To:                  to,
		Amount:              amount,
		Timestamp:           now.UnixMilli(),
		Nonce:               uuid.NewString(),
		Status:              TxPending,
		IsSystemTransaction: isSystem,
	}

	hash, err := tx.ComputeHash()
	if err != nil {
		return Tx{}, err
	}
	tx.Hash = hash

	return tx, nil
}

// ComputeHash returns the hash of the transaction from its current content.
func (tx Tx) ComputeHash() (string, error) {
	return digest.Hash(txContent{
		From:      tx.From,
		To:        tx.To,
		Amount:    tx.Amount,
		Timestamp: tx.Timestamp,
		Nonce:     tx.Nonce,
	})
}

// Validate checks the transaction is well formed and its hash matches
// its content.
func (tx Tx) Validate() error {
	if tx.Hash == "" || tx.From == "" || tx.To == "" || tx.Nonce == "" {
		return errors.New("transaction is missing required fields")
	}

	if tx.From == tx.To {
		return fmt.Errorf("transaction invalid, sending money to yourself, from %s, to %s", tx.From, tx.To)
	}

	if !(tx.Amount > 0) {
		return fmt.Errorf("transaction invalid, amount %v is not positive", tx.Amount)
	}

	hash, err := tx.ComputeHash()
	if err != nil {
		return err
	}

	if hash != tx.Hash {
		return fmt.Errorf("transaction hash doesn't match its content, got %s, exp %s", tx.Hash, hash)
	}

	return nil
}

// Involves reports whether the wallet is the sender or recipient.
func (tx Tx) Involves(address string) bool {
	return tx.From == address || tx.To == address
}

// MerkleHash implements the merkle Hashable interface for providing a hash
// of a transaction. The hash is recomputed so a tampered transaction
// changes the merkle root.
func (tx Tx) MerkleHash() (string, error) {
	return tx.ComputeHash()
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two transactions.
func (tx Tx) Equals(otherTx Tx) bool {
	return tx.Hash == otherTx.Hash
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s:%s->%s:%v", tx.Hash, tx.From, tx.To, tx.Amount)
}
