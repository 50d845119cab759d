// Package worker implements background mining for the ledger.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/walletchain/foundation/blockchain/state"
)

// Worker manages the POW workflows for the ledger.
type Worker struct {
	state       *state.State
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	shut        chan struct{}
	startMining chan bool
	mineTimeout time.Duration
	evHandler   state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up the mining goroutine. A zero mineTimeout lets a mining operation
// run until it finds a block or the worker is shut down.
func Run(st *state.State, mineTimeout time.Duration, evHandler state.EventHandler) *Worker {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := Worker{
		state:       st,
		ctx:         ctx,
		cancel:      cancel,
		shut:        make(chan struct{}),
		startMining: make(chan bool, 1),
		mineTimeout: mineTimeout,
		evHandler:   evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	w.wg.Add(1)

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.miningOperations()
	}()

	<-hasStarted

	// Pick up anything left in the pool from a previous run.
	w.SignalStartMining()

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work. A mining operation in
// progress is cancelled.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel mining")
	w.cancel()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
