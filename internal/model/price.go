package model

import (
	"fmt"
	"math"
	"time"
)

// Source tags where a price came from.
type Source string

const (
	SourceExternalFeed Source = "external-feed"
	SourceOracle       Source = "onchain-oracle"
	SourcePoolReserves Source = "pool-reserves"
	SourceDerivedPool  Source = "derived-pool"
	SourceError        Source = "error"
)

// ErrorCode classifies a failed resolution so callers can react to specific
// failure classes (for example back off on rate limits) without parsing text.
type ErrorCode string

const (
	CodeRateLimited     ErrorCode = "rate_limited"
	CodeDeferred        ErrorCode = "deferred"
	CodeTimeout         ErrorCode = "timeout"
	CodeCanceled        ErrorCode = "canceled"
	CodeInvalidSnapshot ErrorCode = "invalid_snapshot"
	CodeInvalidPrice    ErrorCode = "invalid_price"
	CodeNoPair          ErrorCode = "no_pair"
	CodeChain           ErrorCode = "chain"
	CodeFeed            ErrorCode = "feed"
	CodeInternal        ErrorCode = "internal"
)

// PriceOutcome is the result of resolving one token. A zero price is never
// valid: every failed path carries SourceError and a message.
type PriceOutcome struct {
	PriceUSD  float64   `json:"price_usd"`
	Source    Source    `json:"source"`
	Timestamp int64     `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
	Code      ErrorCode `json:"code,omitempty"`
}

// Priced builds a successful outcome. Non-finite or non-positive prices are
// turned into an invalid_price error outcome.
func Priced(price float64, source Source, at time.Time) PriceOutcome {
	if !ValidPrice(price) {
		return Failed(at, CodeInvalidPrice, fmt.Sprintf("derived price invalid: %v", price))
	}
	if source == SourceError {
		return Failed(at, CodeInternal, "priced outcome tagged as error")
	}
	return PriceOutcome{
		PriceUSD:  price,
		Source:    source,
		Timestamp: at.UnixMilli(),
	}
}

// Failed builds an error outcome.
func Failed(at time.Time, code ErrorCode, msg string) PriceOutcome {
	if msg == "" {
		msg = "unknown error"
	}
	return PriceOutcome{
		Source:    SourceError,
		Timestamp: at.UnixMilli(),
		Error:     msg,
		Code:      code,
	}
}

// OK reports whether the outcome carries a usable price.
func (o PriceOutcome) OK() bool {
	return o.Source != SourceError && ValidPrice(o.PriceUSD)
}

// ValidPrice reports whether price is finite and strictly positive.
func ValidPrice(price float64) bool {
	return !math.IsNaN(price) && !math.IsInf(price, 0) && price > 0
}

// PriceRecord pairs an outcome with its token for storage sinks.
type PriceRecord struct {
	Token Token `json:"token"`
	PriceOutcome
}
