package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB opens a connection pool from a postgres URL and verifies it with a
// ping.
func NewDB(url string) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// RunMigrations creates the tables used by the audit mirror and the replay
// result archive.
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id VARCHAR(64) PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			day_key VARCHAR(10) NOT NULL,
			ts_ms BIGINT NOT NULL,
			state_before VARCHAR(32) NOT NULL,
			state_after VARCHAR(32) NOT NULL,
			reason_codes TEXT[] NOT NULL DEFAULT '{}',
			plan_json JSONB,
			note TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entries_symbol_day
			ON audit_entries (symbol, day_key)`,

		`CREATE TABLE IF NOT EXISTS replay_results (
			id SERIAL PRIMARY KEY,
			label VARCHAR(120) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			trades INT NOT NULL,
			wins INT NOT NULL,
			losses INT NOT NULL,
			win_rate DECIMAL(8, 4) NOT NULL,
			expectancy_r DECIMAL(12, 4) NOT NULL,
			net_r DECIMAL(12, 4) NOT NULL,
			net_pnl DECIMAL(20, 8) NOT NULL,
			max_drawdown_r DECIMAL(12, 4) NOT NULL,
			avg_hold_minutes DECIMAL(12, 2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS replay_trades (
			id SERIAL PRIMARY KEY,
			replay_result_id INT NOT NULL REFERENCES replay_results(id) ON DELETE CASCADE,
			setup_id VARCHAR(80) NOT NULL,
			side VARCHAR(4) NOT NULL,
			entry_ts_ms BIGINT NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_ts_ms BIGINT NOT NULL,
			exit_price DECIMAL(20, 8) NOT NULL,
			stop_price DECIMAL(20, 8) NOT NULL,
			target_price DECIMAL(20, 8) NOT NULL,
			exit_reason VARCHAR(20) NOT NULL,
			notional DECIMAL(20, 8) NOT NULL,
			r_multiple DECIMAL(12, 4) NOT NULL,
			pnl DECIMAL(20, 8) NOT NULL
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
