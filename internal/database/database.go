package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema holds the tables used by the repository. Products are shared
// across accounts; orders go away with their upload.
const Schema = `
CREATE TABLE IF NOT EXISTS uploads (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	tier TEXT NOT NULL,
	valuation_status TEXT NOT NULL,
	valuation_message TEXT NOT NULL DEFAULT '',
	source_key TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uploads_account ON uploads(account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_uploads_valuation ON uploads(valuation_status, updated_at);

CREATE TABLE IF NOT EXISTS products (
	asin TEXT PRIMARY KEY,
	product_name TEXT NOT NULL DEFAULT '',
	image_url TEXT,
	category TEXT,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS vine_orders (
	id TEXT PRIMARY KEY,
	upload_id TEXT NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
	order_number TEXT NOT NULL,
	order_date DATE,
	order_type TEXT NOT NULL,
	asin TEXT NOT NULL,
	product_name TEXT NOT NULL DEFAULT '',
	estimated_value NUMERIC(12,2),
	computed_value NUMERIC(12,2),
	user_value NUMERIC(12,2),
	user_notes TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vine_orders_upload ON vine_orders(upload_id, order_date DESC);
CREATE INDEX IF NOT EXISTS idx_vine_orders_number ON vine_orders(upload_id, order_number);`

// EnsureSchema creates the tables if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
