package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var showRemoved bool

var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "List the wallets and their balances",
	RunE:  walletsRun,
}

func init() {
	walletsCmd.Flags().BoolVarP(&showRemoved, "removed", "r", false, "Include removed wallets.")
	rootCmd.AddCommand(walletsCmd)
}

func walletsRun(cmd *cobra.Command, args []string) error {
	ls, err := loadState()
	if err != nil {
		return err
	}

	wallets := make([]database.Wallet, 0, len(ls.Wallets))
	for _, w := range ls.Wallets {
		if w.IsActive() || showRemoved {
			wallets = append(wallets, w)
		}
	}

	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].CreatedAt == wallets[j].CreatedAt {
			return wallets[i].Address < wallets[j].Address
		}
		return wallets[i].CreatedAt < wallets[j].CreatedAt
	})

	w := cmd.OutOrStdout()
	for _, wallet := range wallets {
		fmt.Fprintf(w, "Wallet: %s  Balance: %v  Created: %s", wallet.Address, wallet.Balance, time.UnixMilli(wallet.CreatedAt).UTC().Format(time.RFC3339))
		if !wallet.IsActive() {
			fmt.Fprintf(w, "  Removed: %s", time.UnixMilli(wallet.RemovedAt).UTC().Format(time.RFC3339))
		}
		fmt.Fprintln(w)
	}

	return nil
}
