package cmd

import (
	"fmt"

	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var withTrans bool

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the blocks in the chain",
	RunE:  chainRun,
}

func init() {
	chainCmd.Flags().BoolVarP(&withTrans, "trans", "t", false, "Print the transactions of each block.")
	rootCmd.AddCommand(chainCmd)
}

func chainRun(cmd *cobra.Command, args []string) error {
	ls, err := loadState()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, block := range ls.Chain {
		fmt.Fprintf(w, "Block: %d  Hash: %s  Prev: %s  Nonce: %d  Trans: %d\n", block.Index, block.Hash, block.PreviousHash, block.Nonce, len(block.Transactions))

		if withTrans {
			for _, tx := range block.Transactions {
				printTx(cmd, tx)
			}
		}
	}

	return nil
}

func printTx(cmd *cobra.Command, tx database.Tx) {
	kind := "user"
	if tx.IsSystemTransaction {
		kind = "system"
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\tTx: %s  %s -> %s  Amount: %v  Status: %s  Kind: %s\n", tx.Hash, tx.From, tx.To, tx.Amount, tx.Status, kind)
}
