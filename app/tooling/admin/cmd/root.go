// Package cmd contains the admin commands.
package cmd

import (
	"context"
	"fmt"

	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
	"github.com/ardanlabs/walletchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/walletchain/foundation/blockchain/state"
	"github.com/ardanlabs/walletchain/foundation/blockchain/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	storeKind   string
	storePath   string
	genesisFile string
	difficulty  uint
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "Inspect a wallet ledger store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// log is the logger events are written to when running verbose.
var log = zap.NewNop().Sugar()

func init() {
	rootCmd.PersistentFlags().StringVarP(&storeKind, "store", "s", storage.KindDisk, "Store backend: disk, bolt or leveldb.")
	rootCmd.PersistentFlags().StringVarP(&storePath, "path", "p", "zblock/ledger", "Path to the store.")
	rootCmd.PersistentFlags().StringVarP(&genesisFile, "genesis", "g", "", "Optional genesis file the ledger was created with.")
	rootCmd.PersistentFlags().UintVarP(&difficulty, "difficulty", "d", genesis.DefaultDifficulty, "Difficulty the ledger was created with.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log store and ledger events.")
}

// Execute runs the command named on the command line.
func Execute(build string, l *zap.SugaredLogger) error {
	log = l
	rootCmd.Version = build
	return rootCmd.Execute()
}

// =============================================================================

func evHandler(v string, args ...any) {
	if verbose {
		log.Infow(fmt.Sprintf(v, args...))
	}
}

// openStore opens the configured store for reading. The caller must close it.
func openStore() (storage.Store, error) {
	store, err := storage.New(storeKind, storePath, evHandler)
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(); err != nil {
		return nil, err
	}

	return store, nil
}

// loadState reads everything the store holds.
func loadState() (storage.State, error) {
	store, err := openStore()
	if err != nil {
		return storage.State{}, err
	}
	defer store.Close()

	return store.LoadState()
}

// openLedger loads the store into a ledger. A store without a chain or a
// main wallet is refused rather than having them created, so the admin
// tool never writes to the store on its own.
func openLedger(ctx context.Context) (*state.State, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}

	ls, err := store.LoadState()
	if err != nil {
		store.Close()
		return nil, err
	}

	if len(ls.Chain) == 0 {
		store.Close()
		return nil, fmt.Errorf("store %s at %s holds no chain", storeKind, storePath)
	}

	if _, exists := ls.Wallets[database.MainWalletAddress]; !exists {
		store.Close()
		return nil, fmt.Errorf("store %s at %s holds no main wallet", storeKind, storePath)
	}

	gen := genesis.Default()
	gen.Difficulty = difficulty
	if genesisFile != "" {
		if gen, err = genesis.Load(genesisFile); err != nil {
			store.Close()
			return nil, fmt.Errorf("loading genesis file: %w", err)
		}
	}

	st, err := state.New(state.Config{
		Store:     store,
		Genesis:   gen,
		EvHandler: evHandler,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	if err := st.Initialize(ctx); err != nil {
		st.Shutdown()
		return nil, err
	}

	return st, nil
}
