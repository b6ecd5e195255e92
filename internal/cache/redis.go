package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"priceScope/internal/metrics"
	"priceScope/internal/model"
)

const DefaultRedisPrefix = "price:"

// RedisCache shares outcomes between processes. Expiry is delegated to the
// key TTL.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewRedisCache(rdb *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) key(token model.Token) string {
	return c.prefix + token.String()
}

// Get treats any Redis failure as a miss.
func (c *RedisCache) Get(ctx context.Context, token model.Token) (model.PriceOutcome, bool) {
	raw, err := c.rdb.Get(ctx, c.key(token)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis cache get failed", zap.String("token", token.String()), zap.Error(err))
		}
		return c.miss()
	}
	var outcome model.PriceOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		c.logger.Warn("redis cache entry corrupt", zap.String("token", token.String()), zap.Error(err))
		return c.miss()
	}
	if !outcome.OK() {
		return c.miss()
	}
	c.hits.Add(1)
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return outcome, true
}

func (c *RedisCache) miss() (model.PriceOutcome, bool) {
	c.misses.Add(1)
	metrics.CacheLookups.WithLabelValues("miss").Inc()
	return model.PriceOutcome{}, false
}

func (c *RedisCache) Put(ctx context.Context, token model.Token, outcome model.PriceOutcome) {
	if !outcome.OK() {
		return
	}
	raw, err := json.Marshal(outcome)
	if err != nil {
		c.logger.Warn("redis cache encode failed", zap.String("token", token.String()), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, c.key(token), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache set failed", zap.String("token", token.String()), zap.Error(err))
	}
}

// Stats scans the key prefix to count live entries.
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: len(keys),
		TTL:     c.ttl,
	}, nil
}

// Clear deletes every key under the prefix and resets the counters.
func (c *RedisCache) Clear(ctx context.Context) error {
	keys, err := c.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	c.hits.Store(0)
	c.misses.Store(0)
	return nil
}

func (c *RedisCache) keys(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, c.prefix+"*", 256).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
