// Package database builds the Postgres connection pool and bootstraps the
// schema used by the catalog and image queue stores.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restomenu/menu-crawler/internal/config"
)

// NewPool creates a pgx connection pool from config and verifies it with a
// ping. Callers own the returned pool and must Close it.
func NewPool(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Schema is the DDL for the catalog and image queue tables. It mirrors
// migrations/001_init.sql and is safe to re-apply.
const Schema = `
CREATE TABLE IF NOT EXISTS categories (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	image TEXT
);

CREATE TABLE IF NOT EXISTS dishes (
	id BIGSERIAL PRIMARY KEY,
	name VARCHAR(100) NOT NULL,
	description TEXT,
	price NUMERIC(10,2) NOT NULL,
	image TEXT,
	category_id BIGINT REFERENCES categories(id),
	is_available BOOLEAN NOT NULL DEFAULT TRUE,
	UNIQUE (name, category_id)
);

CREATE TABLE IF NOT EXISTS image_queue (
	id BIGSERIAL PRIMARY KEY,
	dish_id BIGINT NOT NULL REFERENCES dishes(id),
	image_url TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	priority INT NOT NULL DEFAULT 1,
	retry_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (dish_id, image_url)
);

CREATE INDEX IF NOT EXISTS idx_image_queue_due
	ON image_queue (priority, created_at)
	WHERE status IN ('pending', 'failed');
`

// EnsureSchema applies the DDL. All statements are idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
