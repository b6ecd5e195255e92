package pricing

import (
	"context"
	"errors"

	"priceScope/internal/feed"
	"priceScope/internal/model"
)

var (
	ErrInvalidPrice = errors.New("invalid price")
	ErrChainRead    = errors.New("on-chain read failed")
	ErrFeedRead     = errors.New("price feed request failed")

	errPanicked = errors.New("internal error")
)

// errorCode maps a strategy error to the code carried by the outcome.
// Rate limiting is checked first so a throttled call is never reported as
// a plain feed or timeout failure.
func errorCode(err error) model.ErrorCode {
	var httpErr *feed.HTTPError
	switch {
	case errors.Is(err, feed.ErrRateLimited):
		return model.CodeRateLimited
	case errors.Is(err, feed.ErrDeferred):
		return model.CodeDeferred
	case errors.Is(err, context.DeadlineExceeded):
		return model.CodeTimeout
	case errors.Is(err, context.Canceled):
		return model.CodeCanceled
	case errors.Is(err, model.ErrInvalidSnapshot):
		return model.CodeInvalidSnapshot
	case errors.Is(err, ErrInvalidPrice):
		return model.CodeInvalidPrice
	case errors.Is(err, feed.ErrNoPair):
		return model.CodeNoPair
	case errors.Is(err, ErrChainRead):
		return model.CodeChain
	case errors.Is(err, ErrFeedRead), errors.As(err, &httpErr):
		return model.CodeFeed
	default:
		return model.CodeInternal
	}
}
