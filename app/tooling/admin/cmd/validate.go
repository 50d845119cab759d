package cmd

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/walletchain/foundation/blockchain/state"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every block and replay the balances",
	RunE:  validateRun,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateRun(cmd *cobra.Command, args []string) error {
	st, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Shutdown()

	status, err := st.Status()
	if err != nil {
		return err
	}

	if err := st.ValidateChain(); err != nil {
		var ce *state.ChainInconsistencyError
		if errors.As(err, &ce) {
			fmt.Fprintf(cmd.OutOrStdout(), "INVALID at block %d: %v\n", ce.Index, ce.Err)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "VALID: %d blocks, head %s\n", status.Height+1, status.LatestHash)

	return nil
}
