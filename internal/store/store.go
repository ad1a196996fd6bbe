// Package store persists SessionState and provides the per-symbol advisory
// lock and the append-only audit journal.
package store

import (
	"context"
	"time"

	"sweep-trading-bot/internal/state"
)

// JournalEntry is one audit record appended per live cycle.
type JournalEntry struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	DayKey      string          `json:"dayKey"`
	TsMs        int64           `json:"tsMs"`
	StateBefore state.Lifecycle `json:"stateBefore"`
	StateAfter  state.Lifecycle `json:"stateAfter"`
	ReasonCodes []string        `json:"reasonCodes"`
	PlanJSON    string          `json:"planJson,omitempty"`
	Note        string          `json:"note,omitempty"`
}

// SessionStore is the persistence boundary of the live coordinator.
type SessionStore interface {
	// Load returns the stored state for (symbol, dayKey), or nil when absent.
	Load(ctx context.Context, symbol, dayKey string) (*state.SessionState, error)

	// Save persists the state with the given TTL.
	Save(ctx context.Context, st *state.SessionState, ttl time.Duration) error

	// TryAcquireLock claims the per-symbol lock with an owner token. Returns
	// false without error when another owner holds it.
	TryAcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// ReleaseLock releases the lock only if the token still owns it.
	ReleaseLock(ctx context.Context, key, token string) error

	// AppendJournal appends an audit entry.
	AppendJournal(ctx context.Context, entry *JournalEntry) error
}
