package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"priceScope/internal/metrics"
	"priceScope/internal/storage"
	"priceScope/internal/storage/postgres"
	"priceScope/internal/watch"
)

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tokens, err := tokensFromArgs(args, cfg.Tokens)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return fmt.Errorf("at least one token is required")
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		sinks storage.Multi
		state watch.StateStore
	)
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		sinks = append(sinks, store)
		state = store
	} else if cfg.State != "" {
		state = watch.NewFileState(cfg.State)
	}
	if len(sinks) == 0 {
		return fmt.Errorf("no output configured: set --out or --pg-dsn")
	}

	metrics.Serve(ctx, cfg.MetricsAddr, nil, logger)

	runner := watch.NewRunner(watch.RunConfig{
		Tokens:    tokens,
		Interval:  cfg.Interval,
		Once:      cfg.Once,
		StateName: "watch",
	}, a.resolver, sinks, state, logger)

	logger.Info("watch start",
		zap.Int("tokens", len(tokens)),
		zap.Duration("interval", cfg.Interval),
		zap.Bool("once", cfg.Once),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PGDSN != ""),
	)

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
