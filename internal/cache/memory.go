package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"priceScope/internal/metrics"
	"priceScope/internal/model"
)

type entry struct {
	outcome   model.PriceOutcome
	expiresAt time.Time
}

// MemoryCache is an in-process ARC cache with a fixed TTL per entry.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time
	arc *lru.ARCCache
	// mu orders expiry removal against writes; hits never take it.
	mu     sync.Mutex
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMemoryCache builds a cache holding at most size entries for ttl each.
// now defaults to time.Now.
func NewMemoryCache(size int, ttl time.Duration, now func() time.Time) (*MemoryCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	arc, err := lru.NewARC(size)
	if err != nil {
		return nil, fmt.Errorf("create arc cache: %w", err)
	}
	return &MemoryCache{ttl: ttl, now: now, arc: arc}, nil
}

func (c *MemoryCache) Get(_ context.Context, token model.Token) (model.PriceOutcome, bool) {
	v, ok := c.arc.Get(token)
	if ok {
		e := v.(*entry)
		if c.now().Before(e.expiresAt) {
			c.hits.Add(1)
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return e.outcome, true
		}
		c.removeIfStale(token, e)
	}
	c.misses.Add(1)
	metrics.CacheLookups.WithLabelValues("miss").Inc()
	return model.PriceOutcome{}, false
}

func (c *MemoryCache) Put(_ context.Context, token model.Token, outcome model.PriceOutcome) {
	if !outcome.OK() {
		return
	}
	c.mu.Lock()
	c.arc.Add(token, &entry{outcome: outcome, expiresAt: c.now().Add(c.ttl)})
	c.mu.Unlock()
}

// removeIfStale drops token only while it still maps to stale, so an entry
// written after the expired read survives.
func (c *MemoryCache) removeIfStale(token model.Token, stale *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.arc.Peek(token); ok && v.(*entry) == stale {
		c.arc.Remove(token)
	}
}

// Stats counts entries still resident, expired or not.
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.arc.Len(),
		TTL:     c.ttl,
	}
}

// Clear drops every entry and resets the counters.
func (c *MemoryCache) Clear() {
	c.arc.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Admin adapts the cache to the context-aware Admin interface.
func (c *MemoryCache) Admin() Admin {
	return memoryAdmin{c}
}

type memoryAdmin struct{ c *MemoryCache }

func (a memoryAdmin) Stats(context.Context) (Stats, error) { return a.c.Stats(), nil }

func (a memoryAdmin) Clear(context.Context) error {
	a.c.Clear()
	return nil
}
