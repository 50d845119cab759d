package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/walletchain/app/services/ledger/handlers"
	"github.com/ardanlabs/walletchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/walletchain/foundation/blockchain/state"
	"github.com/ardanlabs/walletchain/foundation/blockchain/storage"
	"github.com/ardanlabs/walletchain/foundation/blockchain/worker"
	"github.com/ardanlabs/walletchain/foundation/events"
	"github.com/ardanlabs/walletchain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("LEDGER")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:120s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			APIHost         string        `conf:"default:0.0.0.0:8080"`
			CORSOrigin      string        `conf:"default:*"`
		}
		State struct {
			Store          string        `conf:"default:disk"`
			Path           string        `conf:"default:zblock/ledger"`
			GenesisFile    string        `conf:"help:optional genesis file, overrides the values below"`
			Difficulty     uint          `conf:"default:4"`
			Reserve        float64       `conf:"default:1000000"`
			DefaultBalance float64       `conf:"default:1000"`
			AutoMine       bool          `conf:"default:false"`
			MineTimeout    time.Duration `conf:"default:0s"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "wallet ledger service",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "LEDGER"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Ledger Support

	gen := genesis.Genesis{
		Timestamp:      genesis.DefaultTimestamp,
		Difficulty:     cfg.State.Difficulty,
		Reserve:        cfg.State.Reserve,
		DefaultBalance: cfg.State.DefaultBalance,
	}
	if cfg.State.GenesisFile != "" {
		if gen, err = genesis.Load(cfg.State.GenesisFile); err != nil {
			return fmt.Errorf("loading genesis file: %w", err)
		}
	}

	// The ledger packages accept a function of this signature to allow the
	// application to log. Messages prefixed with "viewer:" are also sent to
	// any websocket client that is connected through the events package.
	evts := events.New("viewer:")
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	store, err := storage.New(cfg.State.Store, cfg.State.Path, ev)
	if err != nil {
		return fmt.Errorf("constructing store: %w", err)
	}

	// The state value represents the ledger. It manages the chain, wallets
	// and pending pool and persists them through the store.
	st, err := state.New(state.Config{
		Store:     store,
		Genesis:   gen,
		EvHandler: ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	log.Infow("startup", "status", "initializing ledger", "store", cfg.State.Store, "path", cfg.State.Path)

	if err := st.Initialize(context.Background()); err != nil {
		return fmt.Errorf("initializing ledger: %w", err)
	}

	// With auto mining the worker registers itself with the state and mines
	// after every accepted transaction. Otherwise blocks are only mined
	// through the mine endpoint.
	if cfg.State.AutoMine {
		worker.Run(st, cfg.State.MineTimeout, ev)
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start API Service

	log.Infow("startup", "status", "initializing V1 API support")

	// Construct the mux for the API calls.
	apiMux := handlers.APIMux(handlers.MuxConfig{
		Shutdown:   shutdown,
		Log:        log,
		State:      st,
		Evts:       evts,
		CORSOrigin: cfg.Web.CORSOrigin,
	})

	// Construct a server to service the requests against the mux.
	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      apiMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop api service gracefully: %w", err)
		}
	}

	return nil
}
