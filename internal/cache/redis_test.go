package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priceScope/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisCache(rdb, "", time.Minute, nil)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr, c := newTestRedis(t)
	ctx := context.Background()

	outcome := model.Priced(40, model.SourcePoolReserves, time.UnixMilli(1_700_000_000_123))
	c.Put(ctx, tokenA, outcome)

	assert.True(t, mr.Exists(DefaultRedisPrefix+tokenA.String()))
	got, ok := c.Get(ctx, tokenA)
	require.True(t, ok)
	assert.Equal(t, outcome, got)

	mr.FastForward(61 * time.Second)
	_, ok = c.Get(ctx, tokenA)
	assert.False(t, ok)
}

func TestRedisCacheSkipsErrorsAndCorruptEntries(t *testing.T) {
	mr, c := newTestRedis(t)
	ctx := context.Background()

	c.Put(ctx, tokenA, model.Failed(time.Now(), model.CodeDeferred, "deferred"))
	assert.False(t, mr.Exists(DefaultRedisPrefix+tokenA.String()))

	require.NoError(t, mr.Set(DefaultRedisPrefix+tokenB.String(), "{not json"))
	_, ok := c.Get(ctx, tokenB)
	assert.False(t, ok)
}

func TestRedisCacheStatsAndClear(t *testing.T) {
	mr, c := newTestRedis(t)
	ctx := context.Background()

	c.Put(ctx, tokenA, model.Priced(1, model.SourceExternalFeed, time.Now()))
	c.Put(ctx, tokenB, model.Priced(2, model.SourceExternalFeed, time.Now()))
	require.NoError(t, mr.Set("other:key", "keep"))
	c.Get(ctx, tokenA)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, uint64(1), stats.Hits)

	require.NoError(t, c.Clear(ctx))
	stats, err = c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
	assert.True(t, mr.Exists("other:key"))
}
