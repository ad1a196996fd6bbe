package database

import (
	"context"
	"fmt"

	"sweep-trading-bot/internal/replay"
	"sweep-trading-bot/internal/store"
)

// Repository provides access to the postgres mirror tables.
type Repository struct {
	db *DB
}

// NewRepository creates a repository over an open DB.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// AppendAudit mirrors a journal entry into postgres. Duplicate IDs are
// ignored so a retried cycle cannot double-write.
func (r *Repository) AppendAudit(ctx context.Context, entry *store.JournalEntry) error {
	query := `
		INSERT INTO audit_entries (
			id, symbol, day_key, ts_ms, state_before, state_after,
			reason_codes, plan_json, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID, entry.Symbol, entry.DayKey, entry.TsMs,
		string(entry.StateBefore), string(entry.StateAfter),
		entry.ReasonCodes, entry.PlanJSON, entry.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// GetAuditEntries returns the most recent audit entries for a symbol and day.
func (r *Repository) GetAuditEntries(ctx context.Context, symbol, dayKey string, limit int) ([]store.JournalEntry, error) {
	query := `
		SELECT id, symbol, day_key, ts_ms, state_before, state_after,
			   reason_codes, COALESCE(plan_json::text, ''), COALESCE(note, '')
		FROM audit_entries
		WHERE symbol = $1 AND day_key = $2
		ORDER BY ts_ms DESC
		LIMIT $3
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, dayKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []store.JournalEntry{}
	for rows.Next() {
		var e store.JournalEntry
		err := rows.Scan(
			&e.ID, &e.Symbol, &e.DayKey, &e.TsMs,
			&e.StateBefore, &e.StateAfter,
			&e.ReasonCodes, &e.PlanJSON, &e.Note,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}

// SaveReplayResult archives a replay summary and its trades in one
// transaction, returning the new result row id.
func (r *Repository) SaveReplayResult(ctx context.Context, label, symbol string, res *replay.Result) (int64, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO replay_results (
			label, symbol, trades, wins, losses, win_rate,
			expectancy_r, net_r, net_pnl, max_drawdown_r, avg_hold_minutes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	s := res.Summary
	var resultID int64
	err = tx.QueryRow(ctx, query,
		label, symbol, s.Trades, s.Wins, s.Losses, s.WinRate,
		s.ExpectancyR, s.NetR, s.NetPnL, s.MaxDrawdownR, s.AvgHoldMinutes,
	).Scan(&resultID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert replay result: %w", err)
	}

	if len(res.Trades) > 0 {
		tradeQuery := `
			INSERT INTO replay_trades (
				replay_result_id, setup_id, side, entry_ts_ms, entry_price,
				exit_ts_ms, exit_price, stop_price, target_price,
				exit_reason, notional, r_multiple, pnl
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`
		for _, t := range res.Trades {
			_, err = tx.Exec(ctx, tradeQuery,
				resultID, t.SetupID, t.Side, t.EntryTsMs, t.EntryPrice,
				t.ExitTsMs, t.ExitPrice, t.StopPrice, t.TargetPrice,
				t.ExitReason, t.Notional, t.RMultiple, t.PnL,
			)
			if err != nil {
				return 0, fmt.Errorf("failed to insert replay trade: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return resultID, nil
}
