package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"priceScope/internal/metrics"
	"priceScope/internal/model"
)

// GuardConfig bounds request pressure on the aggregator.
type GuardConfig struct {
	// MaxRequests per sliding Window; zero disables the count check.
	MaxRequests int
	Window      time.Duration
	// MinSpacing is the minimum gap between two issued requests.
	MinSpacing time.Duration
	// MaxWait is the longest a caller is held back to honor MinSpacing
	// before the request is deferred instead.
	MaxWait time.Duration
}

// Guard decides whether a feed request may be issued now. It never blocks
// longer than MaxWait; refusals surface as ErrDeferred.
type Guard struct {
	mu           sync.Mutex
	cfg          GuardConfig
	now          func() time.Time
	spacing      *rate.Limiter
	issued       []time.Time
	blockedUntil time.Time
}

// NewGuard builds a Guard. now defaults to time.Now.
func NewGuard(cfg GuardConfig, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	limit := rate.Inf
	if cfg.MinSpacing > 0 {
		limit = rate.Every(cfg.MinSpacing)
	}
	return &Guard{
		cfg:     cfg,
		now:     now,
		spacing: rate.NewLimiter(limit, 1),
	}
}

// Acquire reserves a request slot, waiting at most MaxWait.
func (g *Guard) Acquire(ctx context.Context) error {
	delay, err := g.reserve()
	if err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (g *Guard) reserve() (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Before(g.blockedUntil) {
		return 0, fmt.Errorf("%w: blocked after 429 for another %s", ErrDeferred, g.blockedUntil.Sub(now))
	}

	g.prune(now)
	if g.cfg.MaxRequests > 0 && len(g.issued) >= g.cfg.MaxRequests {
		return 0, fmt.Errorf("%w: %d requests within %s", ErrDeferred, len(g.issued), g.cfg.Window)
	}

	res := g.spacing.ReserveN(now, 1)
	if !res.OK() {
		return 0, ErrDeferred
	}
	delay := res.DelayFrom(now)
	if delay > g.cfg.MaxWait {
		res.CancelAt(now)
		return 0, fmt.Errorf("%w: next request slot in %s", ErrDeferred, delay)
	}

	g.issued = append(g.issued, now.Add(delay))
	return delay, nil
}

// ReportRateLimited blocks all requests until the current window ends,
// whatever the counted tally.
func (g *Guard) ReportRateLimited() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)
	until := now.Add(g.cfg.Window)
	if len(g.issued) > 0 {
		until = g.issued[0].Add(g.cfg.Window)
	}
	if until.After(g.blockedUntil) {
		g.blockedUntil = until
	}
}

// Blocked reports whether a 429 block is active.
func (g *Guard) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Before(g.blockedUntil)
}

// InWindow returns the number of requests counted in the current window.
func (g *Guard) InWindow() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.now())
	return len(g.issued)
}

func (g *Guard) prune(now time.Time) {
	cutoff := now.Add(-g.cfg.Window)
	i := 0
	for i < len(g.issued) && !g.issued[i].After(cutoff) {
		i++
	}
	g.issued = g.issued[i:]
}

// GuardedFeed gates a Feed behind a Guard and feeds 429s back into it.
type GuardedFeed struct {
	feed   Feed
	guard  *Guard
	logger *zap.Logger
}

func NewGuardedFeed(feed Feed, guard *Guard, logger *zap.Logger) *GuardedFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardedFeed{feed: feed, guard: guard, logger: logger}
}

func (g *GuardedFeed) Pairs(ctx context.Context, token model.Token) ([]model.TradingPair, error) {
	if g.guard != nil {
		if err := g.guard.Acquire(ctx); err != nil {
			if errors.Is(err, ErrDeferred) {
				metrics.FeedRequests.WithLabelValues("deferred").Inc()
				g.logger.Debug("price feed request deferred", zap.String("token", token.String()), zap.Error(err))
			}
			return nil, err
		}
	}

	pairs, err := g.feed.Pairs(ctx, token)
	switch {
	case err == nil:
		metrics.FeedRequests.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrRateLimited):
		metrics.FeedRequests.WithLabelValues("rate_limited").Inc()
		if g.guard != nil {
			g.guard.ReportRateLimited()
		}
		g.logger.Warn("price feed rate limited", zap.String("token", token.String()))
	default:
		metrics.FeedRequests.WithLabelValues("error").Inc()
	}
	return pairs, err
}
