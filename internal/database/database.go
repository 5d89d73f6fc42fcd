// Package database manages PostgreSQL connections and persists call records
// and ledger snapshots for reporting.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool and provides query methods.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate runs database schema migrations.
// An advisory lock prevents concurrent replicas from racing on DDL statements.
func (db *DB) Migrate(ctx context.Context) error {
	// Acquire a dedicated connection for the advisory lock.
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for migration: %w", err)
	}
	defer conn.Release()

	// Application-specific lock ID to avoid collisions with other apps on the
	// same PostgreSQL instance.
	const migrationLockID int64 = 0x5358_4701 // "SXG" prefix + 01
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}
	defer conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)

	schema := `
	CREATE TABLE IF NOT EXISTS call_records (
		id             TEXT PRIMARY KEY,
		tenant_id      TEXT NOT NULL,
		task_type      TEXT NOT NULL,
		model_id       TEXT NOT NULL,
		provider       TEXT NOT NULL,
		input_tokens   BIGINT NOT NULL DEFAULT 0,
		output_tokens  BIGINT NOT NULL DEFAULT 0,
		cost_usd       NUMERIC(14,6) NOT NULL DEFAULT 0,
		outcome        TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		latency_ms     BIGINT NOT NULL DEFAULT 0,
		timestamp      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS budget_ledgers (
		tenant_id   TEXT NOT NULL,
		day         TEXT NOT NULL,
		spent_usd   NUMERIC(14,6) NOT NULL DEFAULT 0,
		ceiling_usd NUMERIC(14,6) NOT NULL DEFAULT 0,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, day)
	);

	CREATE INDEX IF NOT EXISTS idx_call_records_tenant_id ON call_records(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_call_records_timestamp ON call_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_call_records_model_id ON call_records(model_id);
	CREATE INDEX IF NOT EXISTS idx_call_records_task_type ON call_records(task_type);
	CREATE INDEX IF NOT EXISTS idx_call_records_outcome ON call_records(outcome);
	`

	_, err = conn.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}
