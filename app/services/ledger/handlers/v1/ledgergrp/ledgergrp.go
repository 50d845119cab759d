// Package ledgergrp maintains the group of handlers for the wallet ledger.
package ledgergrp

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/walletchain/business/sys/validate"
	"github.com/ardanlabs/walletchain/business/web/errs"
	"github.com/ardanlabs/walletchain/foundation/blockchain/state"
	"github.com/ardanlabs/walletchain/foundation/events"
	"github.com/ardanlabs/walletchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Status returns a summary of the ledger.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status, err := h.State.Status()
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// =============================================================================

// AddWallet registers a wallet. An empty body registers a wallet with a
// generated address and the default balance.
func (h Handlers) AddWallet(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nw newWallet
	if r.ContentLength != 0 {
		if err := decode(r, &nw); err != nil {
			return err
		}
	}

	wallet, err := h.State.AddWallet(state.NewWallet{
		Address: nw.Address,
		Balance: nw.Balance,
	})
	if err != nil {
		return errs.FromLedger(err)
	}

	h.Log.Infow("add wallet", "traceid", web.GetTraceID(ctx), "address", wallet.Address, "balance", wallet.Balance)

	return web.Respond(ctx, w, wallet, http.StatusCreated)
}

// Wallets returns the active wallets.
func (h Handlers) Wallets(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	wallets, err := h.State.Wallets()
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, wallets, http.StatusOK)
}

// Wallet returns the wallet for the specified address along with the
// number of mined transactions it took part in.
func (h Handlers) Wallet(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	wallet, err := h.State.GetWallet(address)
	if err != nil {
		return errs.FromLedger(err)
	}

	count, err := h.State.WalletTransactionCount(address)
	if err != nil {
		return errs.FromLedger(err)
	}

	info := walletInfo{
		Wallet:           wallet,
		TransactionCount: count,
	}

	return web.Respond(ctx, w, info, http.StatusOK)
}

// WalletTransactions returns the mined and pending transactions for the
// specified wallet.
func (h Handlers) WalletTransactions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	trans, err := h.State.TransactionsByWallet(web.Param(r, "address"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// RemoveWallet removes the wallet for the specified address. Any remaining
// balance is swept back to the main wallet.
func (h Handlers) RemoveWallet(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	if err := h.State.RemoveWallet(ctx, address); err != nil {
		return errs.FromLedger(err)
	}

	h.Log.Infow("remove wallet", "traceid", web.GetTraceID(ctx), "address", address)

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// =============================================================================

// CreateTransaction adds a new transfer to the pending pool.
func (h Handlers) CreateTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nt newTx
	if err := decode(r, &nt); err != nil {
		return err
	}

	tx, err := h.State.CreateTransaction(state.NewTx{
		From:   nt.From,
		To:     nt.To,
		Amount: *nt.Amount,
	})
	if err != nil {
		return errs.FromLedger(err)
	}

	h.Log.Infow("add tran", "traceid", web.GetTraceID(ctx), "hash", tx.Hash, "from", tx.From, "to", tx.To, "amount", tx.Amount)

	return web.Respond(ctx, w, tx, http.StatusCreated)
}

// Pending returns the transactions waiting to be mined.
func (h Handlers) Pending(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	trans, err := h.State.PendingTransactions()
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Transaction returns the transaction for the specified hash.
func (h Handlers) Transaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tx, err := h.State.TransactionByHash(web.Param(r, "hash"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, tx, http.StatusOK)
}

// Proof returns the merkle proof that a mined transaction is part of its
// block.
func (h Handlers) Proof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	proof, err := h.State.MerkleProof(web.Param(r, "hash"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, proof, http.StatusOK)
}

// =============================================================================

// Mine mines the pending transactions into a new block. The request context
// cancels the work if the client goes away.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.MineBlock(ctx)
	if err != nil {
		return errs.FromLedger(err)
	}

	h.Log.Infow("mine block", "traceid", web.GetTraceID(ctx), "index", block.Index, "hash", block.Hash, "trans", len(block.Transactions))

	return web.Respond(ctx, w, block, http.StatusCreated)
}

// Blocks returns the full chain.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks, err := h.State.Chain()
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// LatestBlock returns the block at the head of the chain.
func (h Handlers) LatestBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.LatestBlock()
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// Block returns the block at the specified index.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := strconv.ParseUint(web.Param(r, "index"), 10, 64)
	if err != nil {
		return errs.FromLedger(&state.Error{Kind: state.KindInvalidFormat, Message: "block index must be a number", Err: err})
	}

	block, err := h.State.BlockByIndex(index)
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// BlockByHash returns the block with the specified hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.BlockByHash(web.Param(r, "hash"))
	if err != nil {
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// ValidateChain checks every block in the chain.
func (h Handlers) ValidateChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.State.ValidateChain(); err != nil {
		return errs.FromLedger(err)
	}

	status, err := h.State.Status()
	if err != nil {
		return errs.FromLedger(err)
	}

	cv := chainValidation{
		Valid:  true,
		Height: status.Height,
	}

	return web.Respond(ctx, w, cv, http.StatusOK)
}

// =============================================================================

// decode reads the request body into the model. Field validation failures
// are returned as is, a body that can't be parsed is a bad request.
func decode(r *http.Request, val any) error {
	err := web.Decode(r, val)
	if err == nil {
		return nil
	}

	if validate.IsFieldErrors(err) {
		return err
	}

	return errs.FromLedger(&state.Error{Kind: state.KindInvalidFormat, Message: "unable to decode payload", Err: err})
}
