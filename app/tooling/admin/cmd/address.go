package cmd

import (
	"fmt"

	"github.com/ardanlabs/walletchain/foundation/blockchain/digest"
	"github.com/spf13/cobra"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Generate a new wallet address",
	RunE:  addressRun,
}

func init() {
	rootCmd.AddCommand(addressCmd)
}

func addressRun(cmd *cobra.Command, args []string) error {
	address, err := digest.GenerateAddress()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), address)

	return nil
}
