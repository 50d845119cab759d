package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List the transactions waiting to be mined",
	RunE:  pendingRun,
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}

func pendingRun(cmd *cobra.Command, args []string) error {
	ls, err := loadState()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pending: %d\n", len(ls.Pending))
	for _, tx := range ls.Pending {
		printTx(cmd, tx)
	}

	return nil
}
