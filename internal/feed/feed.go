// Package feed talks to the external price aggregator and selects the best
// market for a token from the pairs it reports.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"priceScope/internal/model"
)

var (
	// ErrRateLimited is returned when the aggregator answers HTTP 429.
	ErrRateLimited = errors.New("price feed rate-limited (429)")
	// ErrDeferred is returned when the guard refuses to issue a request this cycle.
	ErrDeferred = errors.New("price feed request deferred")
	// ErrNoPair is returned when no reported pair survives filtering.
	ErrNoPair = errors.New("no suitable pairs with priceUsd found")
)

// Feed returns every known trading pair for a token.
type Feed interface {
	Pairs(ctx context.Context, token model.Token) ([]model.TradingPair, error)
}

// HTTPError describes a non-2xx aggregator response.
type HTTPError struct {
	Status int
	URL    string
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("price feed http %d %s: %s", e.Status, e.URL, e.Body)
}

// RateLimited reports whether the response was a 429.
func (e *HTTPError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// Is lets errors.Is(err, ErrRateLimited) match 429 responses.
func (e *HTTPError) Is(target error) bool {
	return target == ErrRateLimited && e.RateLimited()
}
