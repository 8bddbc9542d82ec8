package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewConnection(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("db: DATABASE_URL is not set")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: parse config: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 0
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("db: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return pool, nil
}

type migration struct {
	name string
	sql  string
}

// Statements are idempotent so Migrate can run on every boot.
var migrations = []migration{
	{"create_accounts", `
CREATE TABLE IF NOT EXISTS accounts (
    id           TEXT PRIMARY KEY,
    address      TEXT NOT NULL UNIQUE,
    api_key_hash TEXT UNIQUE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`},
	{"create_balances", `
CREATE TABLE IF NOT EXISTS balances (
    account_id TEXT NOT NULL REFERENCES accounts (id),
    token      TEXT NOT NULL,
    amount     NUMERIC NOT NULL DEFAULT 0 CHECK (amount >= 0),
    version    BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (account_id, token)
)`},
	{"create_transactions", `
CREATE TABLE IF NOT EXISTS transactions (
    id                TEXT PRIMARY KEY,
    sender_id         TEXT NOT NULL,
    recipient_address TEXT NOT NULL,
    token             TEXT NOT NULL,
    amount            NUMERIC NOT NULL CHECK (amount > 0),
    memo              TEXT,
    status            TEXT NOT NULL,
    tx_hash           TEXT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
)`},
	{"index_transactions_sender", `CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions (sender_id, created_at DESC)`},
	{"index_transactions_recipient", `CREATE INDEX IF NOT EXISTS idx_transactions_recipient ON transactions (recipient_address, created_at DESC)`},
	{"index_transactions_pending", `CREATE INDEX IF NOT EXISTS idx_transactions_pending ON transactions (created_at) WHERE status = 'pending'`},
}

func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("db: migration %s: %w", m.name, err)
		}
		logger.Debug("migration applied", "name", m.name)
	}
	return nil
}
