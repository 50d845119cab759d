package database

// MainWalletAddress is the address of the reserve wallet created at genesis.
const MainWalletAddress = "main_wallet"

// Wallet represents an account that can send and receive funds.
type Wallet struct {
	Address        string  `json:"address"`
	Balance        float64 `json:"balance"`
	CreatedAt      int64   `json:"createdAt"`
	IsMainWallet   bool    `json:"isMainWallet"`
	InitialBalance float64 `json:"initialBalance"`      // Balance assigned at registration, used to replay the chain.
	RemovedAt      int64   `json:"removedAt,omitempty"` // Non-zero once the wallet has been removed.
}

// IsActive reports whether the wallet has not been removed.
func (w Wallet) IsActive() bool {
	return w.RemovedAt == 0
}
