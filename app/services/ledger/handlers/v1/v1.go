// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/walletchain/app/services/ledger/handlers/v1/ledgergrp"
	"github.com/ardanlabs/walletchain/foundation/blockchain/state"
	"github.com/ardanlabs/walletchain/foundation/events"
	"github.com/ardanlabs/walletchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// Routes binds all the version 1 routes.
func Routes(app *web.App, cfg Config) {
	lgh := ledgergrp.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", lgh.Events)
	app.Handle(http.MethodGet, version, "/status", lgh.Status)

	app.Handle(http.MethodPost, version, "/wallets", lgh.AddWallet)
	app.Handle(http.MethodGet, version, "/wallets", lgh.Wallets)
	app.Handle(http.MethodGet, version, "/wallets/:address", lgh.Wallet)
	app.Handle(http.MethodGet, version, "/wallets/:address/transactions", lgh.WalletTransactions)
	app.Handle(http.MethodDelete, version, "/wallets/:address", lgh.RemoveWallet)

	app.Handle(http.MethodPost, version, "/transactions", lgh.CreateTransaction)
	app.Handle(http.MethodGet, version, "/transactions/pending", lgh.Pending)
	app.Handle(http.MethodGet, version, "/transactions/:hash", lgh.Transaction)
	app.Handle(http.MethodGet, version, "/transactions/:hash/proof", lgh.Proof)

	app.Handle(http.MethodPost, version, "/mine", lgh.Mine)

	app.Handle(http.MethodGet, version, "/blocks", lgh.Blocks)
	app.Handle(http.MethodGet, version, "/blocks/latest", lgh.LatestBlock)
	app.Handle(http.MethodGet, version, "/blocks/:index", lgh.Block)
	app.Handle(http.MethodGet, version, "/blocks/hash/:hash", lgh.BlockByHash)

	app.Handle(http.MethodGet, version, "/chain/validate", lgh.ValidateChain)
}
