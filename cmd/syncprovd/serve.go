package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dirsync/syncprov/config"
	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/internal/checkpoint"
	"github.com/dirsync/syncprov/internal/entrystore"
	"github.com/dirsync/syncprov/internal/refresh"
	"github.com/dirsync/syncprov/logger"
	"github.com/dirsync/syncprov/provider"
	"github.com/dirsync/syncprov/transport/wsserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync-provider daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}

	if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Level); err != nil {
		return errors.Wrap(err, "initializing logger")
	}
	defer logger.Sync()

	st, err := entrystore.Open(cfg.Database.Path, cfg.Suffix)
	if err != nil {
		return errors.Wrap(err, "opening entry store")
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := provider.New(ctx, st, provider.Config{
		ServerID:       1,
		SessionLogSize: cfg.SessionLog.Capacity,
		Checkpoint: checkpoint.Thresholds{
			Ops:      cfg.Checkpoint.Ops,
			Interval: time.Duration(cfg.Checkpoint.Seconds) * time.Second,
		},
		Refresh: refresh.Config{
			NoPresent:      cfg.NoPresent,
			ReloadHint:     cfg.ReloadHint,
			IDSetBatchSize: cfg.IDSet.BatchSize,
		},
	})
	if err != nil {
		return errors.Wrap(err, "starting sync provider")
	}
	defer p.Close(context.Background())

	mux := http.NewServeMux()
	mux.Handle("/sync", wsserver.NewListener(p))

	httpSrv := &http.Server{Addr: cfg.Listen.Address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		logger.ProviderInfow("listening", "address", cfg.Listen.Address)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server failed")
	case <-sigChan:
		logger.ProviderInfow("shutting down gracefully, press ctrl-c again to force")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		done := make(chan error, 1)
		go func() { done <- httpSrv.Shutdown(shutdownCtx) }()

		select {
		case err := <-done:
			return err
		case <-sigChan:
			os.Exit(1)
			return nil // unreachable
		}
	}
}
