// Package cache memoizes successful price outcomes for a bounded time.
package cache

import (
	"context"
	"time"

	"priceScope/internal/model"
)

const (
	DefaultTTL  = 5 * time.Minute
	DefaultSize = 1024
)

// Cache stores price outcomes per token. Implementations drop error
// outcomes on Put and never return an expired entry from Get.
type Cache interface {
	Get(ctx context.Context, token model.Token) (model.PriceOutcome, bool)
	Put(ctx context.Context, token model.Token, outcome model.PriceOutcome)
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Hits    uint64        `json:"hits"`
	Misses  uint64        `json:"misses"`
	Entries int           `json:"entries"`
	TTL     time.Duration `json:"ttl"`
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, model.Token) (model.PriceOutcome, bool) {
	return model.PriceOutcome{}, false
}
func (Nop) Put(context.Context, model.Token, model.PriceOutcome) {}

// Admin exposes inspection and reset for a cache backend.
type Admin interface {
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) error
}
