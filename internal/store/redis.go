package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sweep-trading-bot/internal/state"
)

// Redis key prefixes.
const (
	// sessionKeyPrefix keys one SessionState: sweep:session:{symbol}:{dayKey}
	sessionKeyPrefix = "sweep:session"
	// lockKeyPrefix keys the per-symbol advisory lock: sweep:lock:{symbol}
	lockKeyPrefix = "sweep:lock"
	// journalStream is the append-only audit stream.
	journalStream = "sweep:journal"
)

// RedisStore is the production SessionStore backed by redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ SessionStore = (*RedisStore)(nil)

func sessionKey(symbol, dayKey string) string {
	return fmt.Sprintf("%s:%s:%s", sessionKeyPrefix, symbol, dayKey)
}

// LockKey returns the advisory lock key for a symbol.
func LockKey(symbol string) string {
	return fmt.Sprintf("%s:%s", lockKeyPrefix, symbol)
}

// Load fetches and unmarshals the session state, returning nil when the key
// does not exist.
func (r *RedisStore) Load(ctx context.Context, symbol, dayKey string) (*state.SessionState, error) {
	data, err := r.client.Get(ctx, sessionKey(symbol, dayKey)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}
	var st state.SessionState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	return &st, nil
}

// Save marshals and stores the session state with a TTL.
func (r *RedisStore) Save(ctx context.Context, st *state.SessionState, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(st.Symbol, st.DayKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

// TryAcquireLock claims the key with SETNX semantics and a bounded TTL, so a
// crashed owner can never block the symbol forever.
func (r *RedisStore) TryAcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock deletes the key only when the stored token matches, so an
// expired owner cannot release a lock someone else re-acquired.
func (r *RedisStore) ReleaseLock(ctx context.Context, key, token string) error {
	current, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if current != token {
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// AppendJournal appends the entry to the audit stream.
func (r *RedisStore) AppendJournal(ctx context.Context, entry *JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: journalStream,
		Values: map[string]interface{}{"entry": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}
