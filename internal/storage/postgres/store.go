package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"priceScope/internal/model"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS price_history (
	id BIGSERIAL PRIMARY KEY,
	token TEXT NOT NULL,
	price_usd DOUBLE PRECISION NOT NULL,
	source TEXT NOT NULL,
	error TEXT,
	code TEXT,
	observed_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS price_history_token_observed_idx ON price_history (token, observed_at DESC);

CREATE TABLE IF NOT EXISTS token_prices (
	token TEXT PRIMARY KEY,
	price_usd DOUBLE PRECISION NOT NULL,
	source TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pricer_state (
	name TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for resolved prices.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// PutPriceBatch appends every record to price_history and moves the latest
// price forward for successful ones. Error outcomes never replace a price.
func (s *Store) PutPriceBatch(ctx context.Context, records []model.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, record := range records {
		observed := time.UnixMilli(record.Timestamp).UTC()
		batch.Queue(`
			INSERT INTO price_history (token, price_usd, source, error, code, observed_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		`,
			record.Token.String(),
			record.PriceUSD,
			string(record.Source),
			record.Error,
			string(record.Code),
			observed,
		)
		if !record.OK() {
			continue
		}
		batch.Queue(`
			INSERT INTO token_prices (token, price_usd, source, observed_at, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (token)
			DO UPDATE SET
				price_usd = EXCLUDED.price_usd,
				source = EXCLUDED.source,
				observed_at = EXCLUDED.observed_at,
				updated_at = now()
			WHERE token_prices.observed_at <= EXCLUDED.observed_at
		`,
			record.Token.String(),
			record.PriceUSD,
			string(record.Source),
			observed,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LatestPrice returns the last successful price stored for token.
func (s *Store) LatestPrice(ctx context.Context, token model.Token) (model.PriceOutcome, bool, error) {
	var (
		price    float64
		source   string
		observed time.Time
	)
	row := s.pool.QueryRow(ctx, `SELECT price_usd, source, observed_at FROM token_prices WHERE token=$1`, token.String())
	if err := row.Scan(&price, &source, &observed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PriceOutcome{}, false, nil
		}
		return model.PriceOutcome{}, false, err
	}
	return model.PriceOutcome{
		PriceUSD:  price,
		Source:    model.Source(source),
		Timestamp: observed.UnixMilli(),
	}, true, nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (int64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM pricer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return ts, true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts int64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pricer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, ts)
	return err
}
