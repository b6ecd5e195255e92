// Package watch refreshes a fixed token list on an interval and hands the
// outcomes to storage.
package watch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"priceScope/internal/model"
	"priceScope/internal/storage"
)

// PriceResolver is the slice of pricing.Resolver the runner needs.
type PriceResolver interface {
	ResolveMany(ctx context.Context, tokens []model.Token) map[model.Token]model.PriceOutcome
}

// RunConfig holds runtime settings for the watcher.
type RunConfig struct {
	Tokens   []model.Token
	Interval time.Duration
	Once     bool
	// StateName keys the checkpoint; empty disables checkpointing.
	StateName string
}

// CycleStats summarises one refresh.
type CycleStats struct {
	OK       int
	Failed   int
	Deferred int
}

// Runner resolves the configured tokens once per interval.
type Runner struct {
	cfg      RunConfig
	resolver PriceResolver
	storage  storage.Storage
	state    StateStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunner builds a Runner with its dependencies. state may be nil.
func NewRunner(cfg RunConfig, resolver PriceResolver, storageSink storage.Storage, state StateStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		resolver: resolver,
		storage:  storageSink,
		state:    state,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes refresh cycles until ctx is done, or once when configured.
func (r *Runner) Run(ctx context.Context) error {
	if r.resolver == nil {
		return fmt.Errorf("resolver is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if len(r.cfg.Tokens) == 0 {
		return fmt.Errorf("at least one token is required")
	}

	if r.cfg.Once {
		_, err := r.RunCycle(ctx)
		return err
	}
	if r.cfg.Interval <= 0 {
		return fmt.Errorf("interval must be greater than zero")
	}

	if delay := r.resumeDelay(ctx); delay > 0 {
		r.logger.Info("resume from checkpoint", zap.Duration("wait", delay))
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("watch cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle resolves every token once and stores the outcomes. Deferred
// outcomes are skipped: they carry no information about the token.
func (r *Runner) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	outcomes := r.resolver.ResolveMany(ctx, r.cfg.Tokens)

	records := make([]model.PriceRecord, 0, len(outcomes))
	seen := make(map[model.Token]struct{}, len(outcomes))
	for _, token := range r.cfg.Tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}

		outcome, ok := outcomes[token]
		if !ok {
			continue
		}
		switch {
		case outcome.Code == model.CodeDeferred:
			stats.Deferred++
			continue
		case outcome.OK():
			stats.OK++
		default:
			stats.Failed++
		}
		records = append(records, model.PriceRecord{Token: token, PriceOutcome: outcome})
	}

	if err := r.storage.PutPriceBatch(ctx, records); err != nil {
		return stats, fmt.Errorf("store prices: %w", err)
	}

	if r.state != nil && r.cfg.StateName != "" {
		if err := r.state.SaveState(ctx, r.cfg.StateName, r.now().UnixMilli()); err != nil {
			return stats, fmt.Errorf("save state: %w", err)
		}
	}

	r.logger.Info("watch cycle complete",
		zap.Int("ok", stats.OK),
		zap.Int("failed", stats.Failed),
		zap.Int("deferred", stats.Deferred),
	)
	return stats, nil
}

func (r *Runner) resumeDelay(ctx context.Context) time.Duration {
	if r.state == nil || r.cfg.StateName == "" {
		return 0
	}
	last, ok, err := r.state.LoadState(ctx, r.cfg.StateName)
	if err != nil {
		r.logger.Warn("load watch state failed", zap.Error(err))
		return 0
	}
	if !ok {
		return 0
	}
	return nextDelay(time.UnixMilli(last), r.now(), r.cfg.Interval)
}

// nextDelay is how long to wait so the next cycle starts one interval after
// the last one.
func nextDelay(last, now time.Time, interval time.Duration) time.Duration {
	elapsed := now.Sub(last)
	if elapsed < 0 || elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
