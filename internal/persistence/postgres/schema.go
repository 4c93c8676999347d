package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema creates the journal and history tables
const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id         BIGSERIAL PRIMARY KEY,
	cycle_id   TEXT        NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	symbol     TEXT        NOT NULL,
	strategy   TEXT        NOT NULL DEFAULT '',
	code       TEXT        NOT NULL,
	detail     TEXT        NOT NULL DEFAULT '',
	quote_id   TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS decisions_symbol_ts ON decisions (symbol, ts DESC);

CREATE TABLE IF NOT EXISTS fills (
	id           BIGSERIAL PRIMARY KEY,
	order_id     TEXT        NOT NULL UNIQUE,
	quote_id     TEXT        NOT NULL,
	ts           TIMESTAMPTZ NOT NULL,
	symbol       TEXT        NOT NULL,
	strategy     TEXT        NOT NULL,
	status       TEXT        NOT NULL,
	quantity     INTEGER     NOT NULL,
	filled_price DOUBLE PRECISION NOT NULL,
	max_loss     DOUBLE PRECISION NOT NULL,
	legs         JSONB       NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS price_bars (
	symbol TEXT        NOT NULL,
	ts     TIMESTAMPTZ NOT NULL,
	close  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (symbol, ts)
);`

// Migrate applies Schema. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
