package ledgergrp

import (
	"github.com/ardanlabs/walletchain/business/sys/validate"
	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
)

// newWallet is the payload for registering a wallet. Both fields are
// optional, the ledger generates an address and assigns the default
// balance when they are left out.
type newWallet struct {
	Address string   `json:"address"`
	Balance *float64 `json:"balance"`
}

type newTx struct {
	From   string   `json:"from" validate:"required"`
	To     string   `json:"to" validate:"required"`
	Amount *float64 `json:"amount" validate:"required"`
}

// Validate checks the data in the model is considered clean.
func (nt newTx) Validate() error {
	return validate.Check(nt)
}

type walletInfo struct {
	database.Wallet
	TransactionCount int `json:"transactionCount"`
}

type chainValidation struct {
	Valid  bool   `json:"valid"`
	Height uint64 `json:"height"`
}
