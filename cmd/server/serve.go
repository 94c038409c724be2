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

	"github.com/blues/cfs-escrow/internal/config"
	"github.com/blues/cfs-escrow/internal/ethereum"
	"github.com/blues/cfs-escrow/internal/logger"
	"github.com/blues/cfs-escrow/internal/logic"
	"github.com/blues/cfs-escrow/internal/metrics"
	"github.com/blues/cfs-escrow/internal/repository"
	"github.com/blues/cfs-escrow/internal/router"
	"github.com/blues/cfs-escrow/internal/settlement"
	"github.com/blues/cfs-escrow/internal/store"
	"github.com/blues/cfs-escrow/internal/store/levelstore"
	"github.com/blues/cfs-escrow/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the settlement scheduler",
	RunE:  runServe,
}

func setup() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	l, err := logger.NewFromConfig(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger.SetDefaultLogger(l)
	return cfg, nil
}

func openBackend(cfg *config.Config) (store.Backend, error) {
	switch cfg.Store.Driver {
	case "leveldb":
		return levelstore.Open(cfg.Store.Path)
	case "memory":
		logger.Warn("Using in-memory store, state is lost on exit")
		return levelstore.OpenMemory()
	default:
		db, err := repository.Init(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := repository.Migrate(db); err != nil {
			return nil, err
		}
		return repository.New(db), nil
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	backend, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	defer backend.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	projectLogic := logic.NewProjectLogic(backend, m)

	if cfg.Chain.Enabled {
		client, err := ethereum.Dial(ctx, cfg.Chain)
		if err != nil {
			return err
		}
		defer client.Close()

		settler, err := ethereum.NewSettler(client, cfg.Chain)
		if err != nil {
			return err
		}
		verifier, err := ethereum.NewDepositVerifier(client, settler.From(), cfg.Chain)
		if err != nil {
			return err
		}
		projectLogic.SetAssetValidator(settler)
		projectLogic.SetDepositVerifier(verifier)

		dispatcher, err := settlement.NewDispatcher(backend, settler, cfg.Chain.Workers, cfg.Task.BatchSize, m)
		if err != nil {
			return err
		}
		defer dispatcher.Release()
		dispatcher.SetBackoff(
			time.Duration(cfg.Task.RetryBase)*time.Second,
			time.Duration(cfg.Task.RetryMax)*time.Second,
		)

		manager, err := task.NewManager(dispatcher, cfg.Task)
		if err != nil {
			return err
		}
		manager.Start()
		defer manager.Stop()
		logger.Info("Settling payouts from %s on chain %d", settler.From().Hex(), cfg.Chain.ChainId)
	} else {
		logger.Warn("Chain settlement disabled, declared funds are trusted and payouts stay pending in the outbox")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.Setup(projectLogic, reg, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	return nil
}
