package database

import (
	"context"
	"fmt"

	"github.com/yourusername/nse-analytics/internal/config"
)

// Bootstrap DDL for the F&O bhavcopy table. Dates are 8-digit YYYYMMDD
// integers; OI and value columns need headroom well past 32-bit range.
const foBhavcopyDDL = `
CREATE TABLE IF NOT EXISTS fo_bhavcopy (
	trade_date         INTEGER        NOT NULL,
	biz_date           INTEGER        NOT NULL,
	segment            TEXT           NOT NULL DEFAULT 'FO',
	source             TEXT           NOT NULL DEFAULT 'NSE',
	instrument_type    TEXT           NOT NULL,
	instrument_id      TEXT           NOT NULL DEFAULT '',
	isin               TEXT           NOT NULL DEFAULT '',
	symbol             TEXT           NOT NULL,
	series             TEXT           NOT NULL DEFAULT '',
	expiry_date        INTEGER        NOT NULL DEFAULT 0,
	actual_expiry_date INTEGER        NOT NULL DEFAULT 0,
	strike_price       NUMERIC(18,4)  NOT NULL DEFAULT 0,
	option_type        TEXT           NOT NULL DEFAULT '',
	instrument_name    TEXT           NOT NULL DEFAULT '',
	open_price         NUMERIC(18,4)  NOT NULL DEFAULT 0,
	high_price         NUMERIC(18,4)  NOT NULL DEFAULT 0,
	low_price          NUMERIC(18,4)  NOT NULL DEFAULT 0,
	close_price        NUMERIC(18,4)  NOT NULL DEFAULT 0,
	last_price         NUMERIC(18,4)  NOT NULL DEFAULT 0,
	prev_close_price   NUMERIC(18,4)  NOT NULL DEFAULT 0,
	underlying_price   NUMERIC(18,4)  NOT NULL DEFAULT 0,
	settlement_price   NUMERIC(18,4)  NOT NULL DEFAULT 0,
	open_interest      BIGINT         NOT NULL DEFAULT 0,
	change_in_oi       BIGINT         NOT NULL DEFAULT 0,
	volume             BIGINT         NOT NULL DEFAULT 0,
	value              NUMERIC(20,2)  NOT NULL DEFAULT 0,
	trades             BIGINT         NOT NULL DEFAULT 0,
	session_id         TEXT           NOT NULL DEFAULT '',
	lot_size           BIGINT         NOT NULL DEFAULT 0,
	remarks            TEXT           NOT NULL DEFAULT '',
	reserved1          TEXT           NOT NULL DEFAULT '',
	reserved2          TEXT           NOT NULL DEFAULT '',
	reserved3          TEXT           NOT NULL DEFAULT '',
	reserved4          TEXT           NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS fo_bhavcopy_natural_key
	ON fo_bhavcopy (trade_date, instrument_type, symbol, expiry_date, strike_price, option_type);

CREATE INDEX IF NOT EXISTS fo_bhavcopy_symbol_date
	ON fo_bhavcopy (symbol, trade_date);
`

// Initialize creates a database connection pool and ensures the bhavcopy
// schema exists.
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema applies the bootstrap DDL. Idempotent.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, foBhavcopyDDL); err != nil {
		return fmt.Errorf("failed to ensure fo_bhavcopy schema: %w", err)
	}
	return nil
}
