package worker

import (
	"context"
	"errors"
	"time"

	"github.com/ardanlabs/walletchain/foundation/blockchain/state"
)

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation takes the pending transactions and mines a new block.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// Make sure there are transactions in the pool.
	status, err := w.state.Status()
	if err != nil {
		w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		return
	}
	if status.PendingCount == 0 {
		w.evHandler("worker: runMiningOperation: MINING: no transactions to mine")
		return
	}

	// Create a context so mining can be cancelled by a shutdown or
	// the configured timeout.
	ctx := w.ctx
	if w.mineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.mineTimeout)
		defer cancel()
	}

	t := time.Now()
	block, err := w.state.MineBlock(ctx)
	duration := time.Since(t)

	w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoPendingTransactions):
			w.evHandler("worker: runMiningOperation: MINING: WARNING: %s", err)
		case ctx.Err() != nil:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete: %s", ctx.Err())
		default:
			w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runMiningOperation: MINING: blk[%d] hash[%s] txs[%d]", block.Index, block.Hash, len(block.Transactions))

	// After a successful block, check if a new operation should
	// be signaled again.
	if status, err := w.state.Status(); err == nil && status.PendingCount > 0 {
		w.evHandler("worker: runMiningOperation: MINING: signal new mining operation: Txs[%d]", status.PendingCount)
		w.SignalStartMining()
	}
}
