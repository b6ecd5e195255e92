package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"priceScope/internal/server"
	"priceScope/internal/storage/postgres"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.resolver, a.cache, logger)
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		srv.WithHistory(store)
		logger.Info("serving stored prices", zap.Bool("postgres", true))
	}
	return srv.Serve(ctx, cfg.Listen)
}
