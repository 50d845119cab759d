package state

import (
	"fmt"

	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
	"github.com/ardanlabs/walletchain/foundation/blockchain/merkle"
	"github.com/jinzhu/copier"
)

// Status summarizes the ledger.
type Status struct {
	Height       uint64 `json:"height"`
	LatestHash   string `json:"latestHash"`
	PendingCount int    `json:"pendingCount"`
	WalletCount  int    `json:"walletCount"`
	Difficulty   uint   `json:"difficulty"`
}

// Proof carries what is needed to prove a transaction is part of a block
// without the rest of the block's transactions.
type Proof struct {
	TxHash     string   `json:"txHash"`
	BlockIndex uint64   `json:"blockIndex"`
	BlockHash  string   `json:"blockHash"`
	MerkleRoot string   `json:"merkleRoot"`
	Hashes     []string `json:"hashes"`
	Order      []int64  `json:"order"`
}

// Verify recomputes the merkle root from the proof.
func (p Proof) Verify() error {
	return merkle.VerifyProof(p.TxHash, p.Hashes, p.Order, p.MerkleRoot)
}

// =============================================================================

// LatestBlock returns the block at the head of the chain.
func (s *State) LatestBlock() (database.Block, error) {
	if err := s.requireReady(); err != nil {
		return database.Block{}, err
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	if len(s.chain) == 0 {
		return database.Block{}, newError(KindNotInitialized, "chain is empty")
	}

	return copyBlock(s.chain[len(s.chain)-1])
}

// Chain returns a copy of every block in the chain.
func (s *State) Chain() ([]database.Block, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	var chain []database.Block
	if err := copier.CopyWithOption(&chain, &s.chain, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("state: copy chain: %w", err)
	}

	for i := range chain {
		if chain[i].Transactions == nil {
			chain[i].Transactions = []database.Tx{}
		}
	}

	return chain, nil
}

// BlockByIndex returns the block at the specified height.
func (s *State) BlockByIndex(index uint64) (database.Block, error) {
	if err := s.requireReady(); err != nil {
		return database.Block{}, err
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	if index >= uint64(len(s.chain)) {
		return database.Block{}, newError(KindNotFound, "block %d not found", index)
	}

	return copyBlock(s.chain[index])
}

// BlockByHash returns the block with the specified hash. Recently mined or
// requested blocks are served from a cache.
func (s *State) BlockByHash(hash string) (database.Block, error) {
	if err := s.requireReady(); err != nil {
		return database.Block{}, err
	}

	if v, ok := s.blockCache.Get(hash); ok {
		return copyBlock(v.(database.Block))
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	for i := len(s.chain) - 1; i >= 0; i-- {
		if s.chain[i].Hash == hash {
			s.blockCache.Add(hash, s.chain[i])
			return copyBlock(s.chain[i])
		}
	}

	return database.Block{}, newError(KindNotFound, "block %s not found", hash)
}

// PendingTransactions returns the pending pool in the order the
// transactions arrived.
func (s *State) PendingTransactions() ([]database.Tx, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	return s.mempool.Copy(), nil
}

// TransactionByHash looks for the transaction in the chain and then in the
// pending pool.
func (s *State) TransactionByHash(hash string) (database.Tx, error) {
	if err := s.requireReady(); err != nil {
		return database.Tx{}, err
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	if _, tx, found := s.findMined(hash); found {
		return tx, nil
	}

	if tx, exists := s.mempool.Get(hash); exists {
		return tx, nil
	}

	return database.Tx{}, newError(KindNotFound, "transaction %s not found", hash)
}

// TransactionsByWallet returns the mined transactions, oldest block first,
// followed by the pending ones where the wallet is the sender or recipient.
func (s *State) TransactionsByWallet(address string) ([]database.Tx, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	if _, exists := s.accounts.Get(address); !exists {
		return nil, newError(KindNotFound, "wallet %s not found", address)
	}

	txs := []database.Tx{}
	for _, block := range s.chain {
		for _, tx := range block.Transactions {
			if tx.Involves(address) {
				txs = append(txs, tx)
			}
		}
	}

	for _, tx := range s.mempool.Copy() {
		if tx.Involves(address) {
			txs = append(txs, tx)
		}
	}

	return txs, nil
}

// MerkleProof builds the inclusion proof for a mined transaction.
func (s *State) MerkleProof(txHash string) (Proof, error) {
	if err := s.requireReady(); err != nil {
		return Proof{}, err
	}

	s.rw.RLock()
	block, tx, found := s.findMined(txHash)
	s.rw.RUnlock()

	if !found {
		return Proof{}, newError(KindNotFound, "transaction %s is not in a block", txHash)
	}

	tree, err := block.MerkleTree()
	if err != nil {
		return Proof{}, wrapError(KindCrypto, err, "unable to build merkle tree")
	}

	hashes, order, err := tree.Proof(tx)
	if err != nil {
		return Proof{}, wrapError(KindCrypto, err, "unable to build merkle proof")
	}

	proof := Proof{
		TxHash:     tx.Hash,
		BlockIndex: block.Index,
		BlockHash:  block.Hash,
		MerkleRoot: tree.RootHex(),
		Hashes:     append([]string{}, hashes...),
		Order:      append([]int64{}, order...),
	}

	return proof, nil
}

// Status returns a summary of the ledger.
func (s *State) Status() (Status, error) {
	if err := s.requireReady(); err != nil {
		return Status{}, err
	}

	s.rw.RLock()
	defer s.rw.RUnlock()

	latest := s.chain[len(s.chain)-1]

	status := Status{
		Height:       latest.Index,
		LatestHash:   latest.Hash,
		PendingCount: s.mempool.Count(),
		WalletCount:  s.accounts.Count(),
		Difficulty:   s.genesis.Difficulty,
	}

	return status, nil
}

// =============================================================================

// findMined returns the block holding the transaction. The caller must hold
// a lock.
func (s *State) findMined(hash string) (database.Block, database.Tx, bool) {
	for i := len(s.chain) - 1; i >= 0; i-- {
		for _, tx := range s.chain[i].Transactions {
			if tx.Hash == hash {
				return s.chain[i], tx, true
			}
		}
	}

	return database.Block{}, database.Tx{}, false
}

// copyBlock makes a deep copy so callers can't change the chain through the
// transactions slice.
func copyBlock(block database.Block) (database.Block, error) {
	var cp database.Block
	if err := copier.CopyWithOption(&cp, &block, copier.Option{DeepCopy: true}); err != nil {
		return database.Block{}, fmt.Errorf("state: copy block: %w", err)
	}

	if cp.Transactions == nil {
		cp.Transactions = []database.Tx{}
	}

	return cp, nil
}
