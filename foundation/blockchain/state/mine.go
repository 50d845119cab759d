package state

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
)

// MineBlock takes the pending transactions that are still affordable and
// mines them into a new block. A transaction that no longer passes against
// the current balances is left in the pool and logged. The context can be
// used to cancel the proof of work search, in which case nothing changes.
func (s *State) MineBlock(ctx context.Context) (database.Block, error) {
	if err := s.requireReady(); err != nil {
		return database.Block{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: MineBlock: MINING: check mempool count")

	// Are there any transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, newError(KindNoPendingTransactions, "no pending transactions to mine")
	}

	trans := s.selectTransactions()
	if len(trans) == 0 {
		return database.Block{}, newError(KindNoPendingTransactions, "no pending transaction can currently be mined")
	}

	s.evHandler("state: MineBlock: MINING: perform POW: txs[%d]", len(trans))

	block, err := s.mineAndCommit(ctx, trans)
	if err != nil {
		return database.Block{}, err
	}

	if err := s.save(); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// =============================================================================

// selectTransactions re-validates the pool, oldest first, against a scratch
// copy of the balances. The caller must hold mu.
func (s *State) selectTransactions() []database.Tx {
	scratch := s.accounts.Clone()

	var trans []database.Tx
	for _, tx := range s.mempool.PickBest(-1) {
		if err := scratch.ValidateTransaction(tx); err != nil {
			s.evHandler("state: MineBlock: MINING: WARNING: skipping tx[%s]: %s", tx, err)
			continue
		}

		if tx.From == database.MainWalletAddress && !tx.IsSystemTransaction {
			s.evHandler("state: MineBlock: MINING: WARNING: skipping tx[%s]: not a system transaction", tx)
			continue
		}

		if err := scratch.ApplyTransaction(tx); err != nil {
			s.evHandler("state: MineBlock: MINING: WARNING: skipping tx[%s]: %s", tx, err)
			continue
		}

		trans = append(trans, tx)
	}

	return trans
}

// mineAndCommit runs the proof of work for the transactions and, once a
// block is found, applies the balances, appends the block and removes the
// transactions from the pool. The transactions must already be known to
// apply cleanly. The caller must hold mu and is responsible for saving.
func (s *State) mineAndCommit(ctx context.Context, trans []database.Tx) (database.Block, error) {
	completed := make([]database.Tx, len(trans))
	for i, tx := range trans {
		tx.Status = database.TxCompleted
		completed[i] = tx
	}

	args := database.POWArgs{
		PrevBlock:  s.chain[len(s.chain)-1],
		Trans:      completed,
		Difficulty: s.genesis.Difficulty,
		Now:        s.now(),
	}

	t := time.Now()
	block, err := database.POW(ctx, args, s.evHandler)
	if err != nil {
		return database.Block{}, s.miningError(err)
	}

	s.evHandler("state: MineBlock: MINING: blk[%d] mined: duration[%v]", block.Index, time.Since(t))

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineBlock: MINING: update local state")

	s.rw.Lock()
	{
		for _, tx := range block.Transactions {
			if err := s.accounts.ApplyTransaction(tx); err != nil {
				s.evHandler("state: MineBlock: MINING: ERROR: tx[%s]: %s", tx, err)
			}
			s.mempool.Delete(tx.Hash)
		}

		s.chain = append(s.chain, block)
		s.blockCache.Add(block.Hash, block)
	}
	s.rw.Unlock()

	if data, err := json.Marshal(block); err == nil {
		s.evHandler("viewer: block: %s", string(data))
	}

	return block, nil
}
