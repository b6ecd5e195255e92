package pricing

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"priceScope/internal/model"
)

// price dispatches to the strategy for category.
func (r *Resolver) price(ctx context.Context, token model.Token, category Category) (float64, error) {
	switch category {
	case CategoryStable:
		return 1.0, nil
	case CategoryOracle:
		return r.oraclePrice(ctx, token)
	case CategoryPoolShare:
		return r.poolSharePrice(ctx, token)
	case CategoryDerivedPool:
		return r.derivedPrice(ctx, token)
	case CategoryGeneric:
		return r.feedPrice(ctx, token)
	default:
		return 0, fmt.Errorf("unhandled category %s", category)
	}
}

// feedPrice asks the aggregator for token's pairs and takes the best one.
func (r *Resolver) feedPrice(ctx context.Context, token model.Token) (float64, error) {
	if r.feed == nil {
		return 0, fmt.Errorf("%w: no price feed configured", ErrFeedRead)
	}
	pairs, err := r.feed.Pairs(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFeedRead, err)
	}
	pair, price, err := r.selector.Best(pairs)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", token, err)
	}
	r.logger.Debug("feed pair selected",
		zap.String("token", token.String()),
		zap.String("venue", pair.Venue),
		zap.String("pair", pair.PairAddress),
		zap.String("quote", pair.QuoteSymbol),
		zap.Float64("liquidity_usd", pair.LiquidityUSD),
		zap.Float64("price_usd", price),
	)
	return price, nil
}

// referencePrice prices the counter asset of an oracle quote or derived
// pool. It only ever uses the feed strategy, or 1.0 for stable assets.
func (r *Resolver) referencePrice(ctx context.Context, token model.Token) (float64, error) {
	category := r.Classify(ctx, token)
	if category == CategoryStable {
		return 1.0, nil
	}
	cacheable := category == CategoryGeneric
	if cacheable {
		if cached, ok := r.cache.Get(ctx, token); ok && cached.Source == model.SourceExternalFeed {
			return cached.PriceUSD, nil
		}
	}

	price, err := r.feedPrice(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("reference asset %s: %w", token, err)
	}
	if cacheable {
		r.cache.Put(ctx, token, model.Priced(price, model.SourceExternalFeed, r.now()))
	}
	return price, nil
}

// constituentPrice prices one side of a pool. Constituents that are
// themselves pool shares are priced as generic assets so derivation never
// goes deeper than one pool.
func (r *Resolver) constituentPrice(ctx context.Context, token model.Token) (float64, error) {
	category := r.Classify(ctx, token)
	if category == CategoryStable {
		return 1.0, nil
	}
	downgraded := category == CategoryPoolShare
	if downgraded {
		r.logger.Debug("pool constituent priced as generic asset", zap.String("token", token.String()))
		category = CategoryGeneric
	}

	if !downgraded {
		if cached, ok := r.cache.Get(ctx, token); ok && cached.Source == category.Source() {
			return cached.PriceUSD, nil
		}
	}

	price, err := r.price(ctx, token, category)
	if err != nil {
		return 0, fmt.Errorf("constituent %s: %w", token, err)
	}
	if !model.ValidPrice(price) {
		return 0, fmt.Errorf("%w: constituent %s priced at %v", ErrInvalidPrice, token, price)
	}
	if !downgraded {
		r.cache.Put(ctx, token, model.Priced(price, category.Source(), r.now()))
	}
	return price, nil
}

// oraclePrice values one whole unit of token through its TWAP oracle and
// the quote asset's USD price. It never substitutes the feed price of
// token itself.
func (r *Resolver) oraclePrice(ctx context.Context, token model.Token) (float64, error) {
	asset, ok := r.table.Oracle(token)
	if !ok {
		return 0, fmt.Errorf("no oracle configured for %s", token)
	}
	if r.chain == nil {
		return 0, fmt.Errorf("%w: no chain reader configured", ErrChainRead)
	}

	amountIn := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(asset.Decimals)), nil)
	amountOut, err := r.chain.Consult(ctx, asset.Oracle, token, amountIn)
	if err != nil {
		return 0, fmt.Errorf("%w: consult %s: %w", ErrChainRead, asset.Oracle, err)
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		return 0, fmt.Errorf("%w: oracle %s quoted %v for %s", ErrInvalidPrice, asset.Oracle, amountOut, token)
	}

	quoteUSD, err := r.referencePrice(ctx, asset.Quote)
	if err != nil {
		return 0, err
	}

	quoted := decimal.NewFromBigInt(amountOut, -int32(asset.QuoteDecimals))
	return checked(quoted.Mul(decimal.NewFromFloat(quoteUSD)))
}

// poolSharePrice divides the USD value of both reserves by the share supply.
func (r *Resolver) poolSharePrice(ctx context.Context, pool model.Token) (float64, error) {
	snapshot, err := r.snapshot(ctx, pool)
	if err != nil {
		return 0, err
	}

	var priceA, priceB float64
	g, gctx := errgroup.WithContext(ctx)
	r.goSafe(g, snapshot.TokenA, func() error {
		var err error
		priceA, err = r.constituentPrice(gctx, snapshot.TokenA)
		return err
	})
	r.goSafe(g, snapshot.TokenB, func() error {
		var err error
		priceB, err = r.constituentPrice(gctx, snapshot.TokenB)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("pool %s: %w", pool, err)
	}

	valueA := humanUnits(snapshot.ReserveA, snapshot.DecimalsA).Mul(decimal.NewFromFloat(priceA))
	valueB := humanUnits(snapshot.ReserveB, snapshot.DecimalsB).Mul(decimal.NewFromFloat(priceB))
	supply := humanUnits(snapshot.TotalSupply, snapshot.ShareDecimals)

	r.logger.Debug("pool share valued",
		zap.String("pool", pool.String()),
		zap.String("value_a_usd", valueA.String()),
		zap.String("value_b_usd", valueB.String()),
		zap.String("supply", supply.String()),
	)
	return checked(valueA.Add(valueB).Div(supply))
}

// derivedPrice prices token from its reserve ratio against the other side
// of its reference pool.
func (r *Resolver) derivedPrice(ctx context.Context, token model.Token) (float64, error) {
	asset, ok := r.table.Derived(token)
	if !ok {
		return 0, fmt.Errorf("no reference pool configured for %s", token)
	}
	snapshot, err := r.snapshot(ctx, asset.Pool)
	if err != nil {
		return 0, err
	}
	side, ok := snapshot.Side(token)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a side of pool %s", model.ErrInvalidSnapshot, token, asset.Pool)
	}

	counterUSD, err := r.referencePrice(ctx, side.Counter)
	if err != nil {
		return 0, err
	}

	own := humanUnits(side.Reserve, side.Decimals)
	counter := humanUnits(side.CounterReserve, side.CounterDecimals)
	return checked(counter.Div(own).Mul(decimal.NewFromFloat(counterUSD)))
}

func (r *Resolver) snapshot(ctx context.Context, pool model.Token) (model.PoolSnapshot, error) {
	if r.chain == nil {
		return model.PoolSnapshot{}, fmt.Errorf("%w: no chain reader configured", ErrChainRead)
	}
	snapshot, err := r.chain.PoolSnapshot(ctx, pool)
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("%w: pool %s: %w", ErrChainRead, pool, err)
	}
	if err := snapshot.Validate(); err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("pool %s: %w", pool, err)
	}
	return snapshot, nil
}

func humanUnits(amount *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

func checked(d decimal.Decimal) (float64, error) {
	price := d.InexactFloat64()
	if !model.ValidPrice(price) {
		return 0, fmt.Errorf("%w: derived price %s", ErrInvalidPrice, d.String())
	}
	return price, nil
}
