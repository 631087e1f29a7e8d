package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Migrate creates the plan collaborator tables when they are missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying plan schema: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS plans (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL,
	status      TEXT NOT NULL,
	start_date  TIMESTAMPTZ NOT NULL,
	end_date    TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_plans_one_active
	ON plans (account_id) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS plan_categories (
	plan_id   TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	name      TEXT NOT NULL,
	amount    BIGINT NOT NULL CHECK (amount >= 0),
	spent     BIGINT NOT NULL CHECK (spent >= 0),
	PRIMARY KEY (plan_id, name)
);

CREATE TABLE IF NOT EXISTS plan_transactions (
	id           TEXT PRIMARY KEY,
	account_id   TEXT NOT NULL,
	category     TEXT NOT NULL,
	amount       BIGINT NOT NULL,
	occurred_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plan_transactions_account
	ON plan_transactions (account_id, occurred_at);
`
