// Package pricing resolves USD prices for tokens by dispatching each token
// to a strategy chosen from a fixed identity table.
package pricing

import (
	"context"
	"fmt"
	"math/big"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"priceScope/internal/cache"
	"priceScope/internal/feed"
	"priceScope/internal/metrics"
	"priceScope/internal/model"
)

// ChainReader is the on-chain surface the strategies use; *chain.Reader
// satisfies it.
type ChainReader interface {
	Consult(ctx context.Context, oracle, token model.Token, amountIn *big.Int) (*big.Int, error)
	PoolSnapshot(ctx context.Context, pool model.Token) (model.PoolSnapshot, error)
	Symbol(ctx context.Context, token model.Token) (string, error)
}

// Config holds the resolver's collaborators that are not part of the
// constructor signature.
type Config struct {
	Selector feed.Selector
	// Cache defaults to a no-op cache.
	Cache cache.Cache
	// Now defaults to time.Now.
	Now func() time.Time
	// Concurrency bounds ResolveMany; defaults to 8.
	Concurrency int
	// Timeout bounds one shared resolution independently of any single
	// caller's context; defaults to 30s.
	Timeout time.Duration
}

// DefaultTimeout bounds a single shared resolution.
const DefaultTimeout = 30 * time.Second

// Resolver owns no global state: the cache, clock and guard it depends on
// are all injected.
type Resolver struct {
	table       *Table
	chain       ChainReader
	feed        feed.Feed
	selector    feed.Selector
	cache       cache.Cache
	now         func() time.Time
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger

	flight singleflight.Group

	mu      sync.RWMutex
	symbols map[model.Token]Category
}

func NewResolver(cfg Config, table *Table, chainReader ChainReader, priceFeed feed.Feed, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == nil {
		table, _ = NewTable(TableConfig{})
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Resolver{
		table:       table,
		chain:       chainReader,
		feed:        priceFeed,
		selector:    cfg.Selector,
		cache:       cfg.Cache,
		now:         cfg.Now,
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
		logger:      logger,
		symbols:     make(map[model.Token]Category),
	}
}

// ResolvePrice never returns an error: every failure becomes an outcome
// with source "error". Only successful outcomes are cached.
func (r *Resolver) ResolvePrice(ctx context.Context, token model.Token) model.PriceOutcome {
	start := time.Now()
	outcome := r.resolvePrice(ctx, token)
	metrics.ResolveLatency.Observe(time.Since(start).Seconds())
	metrics.Resolutions.WithLabelValues(string(outcome.Source)).Inc()
	return outcome
}

func (r *Resolver) resolvePrice(ctx context.Context, token model.Token) model.PriceOutcome {
	category, known := r.table.Classify(token)
	if category == CategoryStable {
		return model.Priced(1.0, model.SourceExternalFeed, r.now())
	}

	if cached, ok := r.cache.Get(ctx, token); ok {
		return cached
	}

	// The shared call outlives any one caller: a caller that goes away gets
	// its own error while the others keep waiting for the result.
	ch := r.flight.DoChan(token.String(), func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		outcome := r.resolveGuarded(fctx, token, category, known)
		if outcome.OK() {
			r.cache.Put(fctx, token, outcome)
		}
		return outcome, nil
	})
	select {
	case res := <-ch:
		return res.Val.(model.PriceOutcome)
	case <-ctx.Done():
		err := ctx.Err()
		return model.Failed(r.now(), errorCode(err), fmt.Sprintf("resolution abandoned: %v", err))
	}
}

// resolveGuarded turns any panic raised while resolving token into an error
// outcome for that token alone.
func (r *Resolver) resolveGuarded(ctx context.Context, token model.Token, category Category, known bool) (outcome model.PriceOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("price resolution panicked",
				zap.String("token", token.String()),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			outcome = model.Failed(r.now(), model.CodeInternal, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if !known {
		category = r.classifyUnlisted(ctx, token)
	}

	price, err := r.price(ctx, token, category)
	if err != nil {
		r.logger.Warn("price resolution failed",
			zap.String("token", token.String()),
			zap.String("source", string(category.Source())),
			zap.Error(err),
		)
		return model.Failed(r.now(), errorCode(err), err.Error())
	}
	return model.Priced(price, category.Source(), r.now())
}

// goSafe runs fn on g and reports a panic in fn as an error of that
// goroutine instead of letting it take the process down.
func (r *Resolver) goSafe(g *errgroup.Group, token model.Token, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("constituent resolution panicked",
					zap.String("token", token.String()),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				err = fmt.Errorf("%w: %s: %v", errPanicked, token, rec)
			}
		}()
		return fn()
	})
}

// ResolveMany resolves each distinct token independently; one token's
// failure never affects another's outcome.
func (r *Resolver) ResolveMany(ctx context.Context, tokens []model.Token) map[model.Token]model.PriceOutcome {
	results := make(map[model.Token]model.PriceOutcome, len(tokens))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	seen := make(map[model.Token]struct{}, len(tokens))
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}

		token := token
		g.Go(func() error {
			outcome := r.ResolvePrice(ctx, token)
			mu.Lock()
			results[token] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Classify returns the category ResolvePrice would use for token.
func (r *Resolver) Classify(ctx context.Context, token model.Token) Category {
	category, known := r.table.Classify(token)
	if known {
		return category
	}
	return r.classifyUnlisted(ctx, token)
}

func (r *Resolver) classifyUnlisted(ctx context.Context, token model.Token) Category {
	if !r.table.ProbesSymbols() || r.chain == nil {
		return CategoryGeneric
	}

	r.mu.RLock()
	category, ok := r.symbols[token]
	r.mu.RUnlock()
	if ok {
		return category
	}

	symbol, err := r.chain.Symbol(ctx, token)
	if err != nil {
		r.logger.Debug("symbol probe failed", zap.String("token", token.String()), zap.Error(err))
		return CategoryGeneric
	}
	category = r.table.ClassifySymbol(symbol)

	r.mu.Lock()
	r.symbols[token] = category
	r.mu.Unlock()
	return category
}
