package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priceScope/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGuardWindowLimit(t *testing.T) {
	clock := newFakeClock()
	g := NewGuard(GuardConfig{MaxRequests: 2, Window: time.Minute}, clock.Now)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	clock.Advance(10 * time.Second)
	require.NoError(t, g.Acquire(ctx))

	err := g.Acquire(ctx)
	assert.True(t, errors.Is(err, ErrDeferred))
	assert.Equal(t, 2, g.InWindow())

	clock.Advance(51 * time.Second)
	require.NoError(t, g.Acquire(ctx))
	assert.Equal(t, 2, g.InWindow())
}

func TestGuardMinSpacing(t *testing.T) {
	clock := newFakeClock()
	g := NewGuard(GuardConfig{Window: time.Minute, MinSpacing: time.Second}, clock.Now)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	err := g.Acquire(ctx)
	assert.True(t, errors.Is(err, ErrDeferred))

	clock.Advance(time.Second)
	require.NoError(t, g.Acquire(ctx))
}

func TestGuardWaitsWithinMaxWait(t *testing.T) {
	clock := newFakeClock()
	g := NewGuard(GuardConfig{Window: time.Minute, MinSpacing: 20 * time.Millisecond, MaxWait: time.Second}, clock.Now)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	start := time.Now()
	require.NoError(t, g.Acquire(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.Equal(t, 2, g.InWindow())
}

func TestGuardBlocksAfterRateLimit(t *testing.T) {
	clock := newFakeClock()
	g := NewGuard(GuardConfig{MaxRequests: 100, Window: time.Minute}, clock.Now)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	clock.Advance(10 * time.Second)
	g.ReportRateLimited()
	assert.True(t, g.Blocked())

	assert.True(t, errors.Is(g.Acquire(ctx), ErrDeferred))
	clock.Advance(49 * time.Second)
	assert.True(t, errors.Is(g.Acquire(ctx), ErrDeferred))

	clock.Advance(2 * time.Second)
	assert.False(t, g.Blocked())
	require.NoError(t, g.Acquire(ctx))
}

type stubFeed struct {
	mu    sync.Mutex
	calls int
	pairs []model.TradingPair
	err   error
}

func (s *stubFeed) Pairs(ctx context.Context, token model.Token) ([]model.TradingPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.pairs, s.err
}

func TestGuardedFeedRateLimitBlocksFollowUps(t *testing.T) {
	clock := newFakeClock()
	stub := &stubFeed{err: &HTTPError{Status: 429, URL: "x"}}
	gf := NewGuardedFeed(stub, NewGuard(GuardConfig{MaxRequests: 10, Window: time.Minute}, clock.Now), nil)
	token := model.MustToken(testToken)

	_, err := gf.Pairs(context.Background(), token)
	assert.True(t, errors.Is(err, ErrRateLimited))

	_, err = gf.Pairs(context.Background(), token)
	assert.True(t, errors.Is(err, ErrDeferred))
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, 1, stub.calls)
}

func TestGuardedFeedTimeoutDoesNotBlock(t *testing.T) {
	clock := newFakeClock()
	stub := &stubFeed{err: context.DeadlineExceeded}
	guard := NewGuard(GuardConfig{MaxRequests: 10, Window: time.Minute}, clock.Now)
	gf := NewGuardedFeed(stub, guard, nil)
	token := model.MustToken(testToken)

	_, err := gf.Pairs(context.Background(), token)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, guard.Blocked())

	stub.err = nil
	stub.pairs = []model.TradingPair{pair("hyperswap", "USDC", "0xa", "1", 1)}
	pairs, err := gf.Pairs(context.Background(), token)
	require.NoError(t, err)
	assert.Len(t, pairs, 1)
	assert.Equal(t, 2, stub.calls)
}
