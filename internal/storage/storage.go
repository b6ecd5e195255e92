package storage

import (
	"context"
	"errors"

	"priceScope/internal/model"
)

// Storage defines a sink for resolved price records.
type Storage interface {
	PutPriceBatch(ctx context.Context, records []model.PriceRecord) error
}

// Multi writes each batch to every sink and joins their errors.
type Multi []Storage

func (m Multi) PutPriceBatch(ctx context.Context, records []model.PriceRecord) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutPriceBatch(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
