package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/scheduler"
	"github.com/hyperjump/shiori/internal/server"
)

func init() {
	rootCmd.AddCommand(serverCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP API with scheduled learning and labelling",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		components, err := initializeComponents(cfg, logger, true)
		if err != nil {
			return err
		}
		defer components.Close()

		srv := server.NewServer(server.Services{
			Engine:    components.Engine,
			Indexer:   components.Indexer,
			Lookup:    components.Lookup,
			Store:     components.Store,
			Matcher:   components.Matcher,
			Learner:   components.Learner,
			Labeller:  components.Labeller,
			Scheduler: scheduler.New(logger),
		}, cfg, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(ctx) }()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
		return nil
	},
}
