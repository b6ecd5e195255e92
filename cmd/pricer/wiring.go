package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"priceScope/internal/cache"
	"priceScope/internal/chain"
	"priceScope/internal/config"
	"priceScope/internal/feed"
	"priceScope/internal/model"
	"priceScope/internal/pricing"
)

// app holds everything a subcommand needs to resolve prices.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	reader   *chain.Reader
	resolver *pricing.Resolver
	cache    cache.Admin
	closers  []func()
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var chainReader pricing.ChainReader
	if cfg.RPCURL != "" {
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		a.closers = append(a.closers, client.Close)

		idCtx, cancel := context.WithTimeout(ctx, cfg.Chain.CallTimeout)
		chainID, err := client.GetChainID(idCtx)
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("read chain id: %w", err)
		}
		logger.Info("rpc connected", zap.String("rpc", cfg.RPCURL), zap.String("chain_id", chainID.String()))

		a.reader = chain.NewReader(client, chain.ReaderConfig{
			CallTimeout:  cfg.Chain.CallTimeout,
			MaxRetries:   cfg.Chain.MaxRetries,
			RetryBackoff: cfg.Chain.RetryBackoff,
		}, logger)
		chainReader = a.reader
	} else {
		logger.Warn("no rpc configured: oracle and pool tokens will fail to resolve")
	}

	addressMap, err := parseAddressMap(cfg.Feed.AddressMap)
	if err != nil {
		a.Close()
		return nil, err
	}
	feedClient := feed.NewClient(feed.ClientConfig{
		BaseURL:    cfg.Feed.BaseURL,
		Timeout:    cfg.Feed.Timeout,
		AddressMap: addressMap,
	}, logger)
	guard := feed.NewGuard(feed.GuardConfig{
		MaxRequests: cfg.Guard.MaxRequests,
		Window:      cfg.Guard.Window,
		MinSpacing:  cfg.Guard.MinSpacing,
		MaxWait:     cfg.Guard.MaxWait,
	}, nil)
	priceFeed := feed.NewGuardedFeed(feedClient, guard, logger)

	resultCache, err := a.buildCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	table, err := buildTable(cfg.Table)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.resolver = pricing.NewResolver(pricing.Config{
		Selector: feed.Selector{
			ChainIDs:        cfg.Feed.ChainIDs,
			PrimaryVenues:   cfg.Feed.PrimaryVenues,
			StableQuotes:    cfg.Feed.StableQuotes,
			MinLiquidityUSD: cfg.Feed.MinLiquidityUSD,
		},
		Cache: resultCache,
	}, table, chainReader, priceFeed, logger)

	logger.Info("pricer ready",
		zap.String("rpc", cfg.RPCURL),
		zap.String("feed", cfg.Feed.BaseURL),
		zap.String("cache", cfg.Cache.Backend),
		zap.Duration("cache_ttl", cfg.Cache.TTL),
		zap.Int("stable", len(cfg.Table.Stable)),
		zap.Int("oracle", len(cfg.Table.Oracle)),
		zap.Int("pools", len(cfg.Table.Pools)),
		zap.Int("derived", len(cfg.Table.Derived)),
	)
	return a, nil
}

func (a *app) buildCache(ctx context.Context) (cache.Cache, error) {
	switch a.cfg.Cache.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Cache.Redis.Addr,
			Username: a.cfg.Cache.Redis.Username,
			Password: a.cfg.Cache.Redis.Password,
			DB:       a.cfg.Cache.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", a.cfg.Cache.Redis.Addr, err)
		}
		redisCache := cache.NewRedisCache(rdb, a.cfg.Cache.Redis.Prefix, a.cfg.Cache.TTL, a.logger)
		a.cache = redisCache
		return redisCache, nil
	default:
		memCache, err := cache.NewMemoryCache(a.cfg.Cache.Size, a.cfg.Cache.TTL, nil)
		if err != nil {
			return nil, err
		}
		a.cache = memCache.Admin()
		return memCache, nil
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func buildTable(cfg config.TokensConfig) (*pricing.Table, error) {
	stable, err := model.ParseTokens(cfg.Stable)
	if err != nil {
		return nil, fmt.Errorf("tokens.stable: %w", err)
	}
	pools, err := model.ParseTokens(cfg.Pools)
	if err != nil {
		return nil, fmt.Errorf("tokens.pools: %w", err)
	}

	oracle := make([]pricing.OracleAsset, 0, len(cfg.Oracle))
	for _, entry := range cfg.Oracle {
		addrs, err := model.ParseTokens([]string{entry.Address, entry.Oracle, entry.Quote})
		if err != nil {
			return nil, fmt.Errorf("tokens.oracle %s: %w", entry.Address, err)
		}
		if len(addrs) != 3 {
			return nil, fmt.Errorf("tokens.oracle %s: address, oracle and quote are required", entry.Address)
		}
		oracle = append(oracle, pricing.OracleAsset{
			Token:         addrs[0],
			Oracle:        addrs[1],
			Quote:         addrs[2],
			Decimals:      entry.Decimals,
			QuoteDecimals: entry.QuoteDecimals,
		})
	}

	derived := make([]pricing.DerivedAsset, 0, len(cfg.Derived))
	for _, entry := range cfg.Derived {
		addrs, err := model.ParseTokens([]string{entry.Address, entry.Pool})
		if err != nil {
			return nil, fmt.Errorf("tokens.derived %s: %w", entry.Address, err)
		}
		if len(addrs) != 2 {
			return nil, fmt.Errorf("tokens.derived %s: address and pool are required", entry.Address)
		}
		derived = append(derived, pricing.DerivedAsset{Token: addrs[0], Pool: addrs[1]})
	}

	return pricing.NewTable(pricing.TableConfig{
		Stable:           stable,
		Oracle:           oracle,
		Pools:            pools,
		Derived:          derived,
		PoolSymbolMarker: cfg.PoolSymbolMarker,
	})
}

func parseAddressMap(raw map[string]string) (map[model.Token]model.Token, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[model.Token]model.Token, len(raw))
	for from, to := range raw {
		fromToken, err := model.ParseToken(from)
		if err != nil {
			return nil, fmt.Errorf("feed.address-map: %w", err)
		}
		toToken, err := model.ParseToken(to)
		if err != nil {
			return nil, fmt.Errorf("feed.address-map: %w", err)
		}
		out[fromToken] = toToken
	}
	return out, nil
}

// tokensFromArgs merges positional arguments with configured tokens.
func tokensFromArgs(args []string, configured []string) ([]model.Token, error) {
	return model.ParseTokens(append(append([]string{}, args...), configured...))
}
