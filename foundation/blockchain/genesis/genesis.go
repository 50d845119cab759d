// Package genesis maintains access to the genesis settings.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
)

// Set of defaults used when no genesis file is provided.
const (
	DefaultTimestamp     = 1704067200000 // 2024-01-01T00:00:00Z in epoch milliseconds.
	DefaultDifficulty    = 4
	DefaultReserve       = 1_000_000
	DefaultWalletBalance = 1000
	MaxDifficulty        = 64
)

// Genesis represents the genesis settings.
type Genesis struct {
	Timestamp      int64   `json:"timestamp"`       // Fixed time of the genesis block so its hash is reproducible.
	Difficulty     uint    `json:"difficulty"`      // How difficult it needs to be to solve the work problem.
	Reserve        float64 `json:"reserve"`         // Starting balance of the main wallet.
	DefaultBalance float64 `json:"default_balance"` // Balance given to a wallet registered without one.
}

// Default returns the genesis settings used by a new ledger.
func Default() Genesis {
	return Genesis{
		Timestamp:      DefaultTimestamp,
		Difficulty:     DefaultDifficulty,
		Reserve:        DefaultReserve,
		DefaultBalance: DefaultWalletBalance,
	}
}

// Validate checks the settings can produce a working ledger.
func (g Genesis) Validate() error {
	if g.Timestamp <= 0 {
		return fmt.Errorf("genesis timestamp %d must be positive", g.Timestamp)
	}

	if g.Difficulty > MaxDifficulty {
		return fmt.Errorf("genesis difficulty %d exceeds %d", g.Difficulty, MaxDifficulty)
	}

	if g.Reserve < 0 || g.DefaultBalance < 0 {
		return fmt.Errorf("genesis balances must not be negative, reserve %v, default %v", g.Reserve, g.DefaultBalance)
	}

	return nil
}

// =============================================================================

// Load opens and consumes the genesis file. Fields missing from the file keep
// their default value.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	genesis := Default()
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
