package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"sweep-trading-bot/internal/state"
)

// MemoryStore is an in-process SessionStore used by tests and local dry runs.
// Lock TTLs are honored by expiry timestamps rather than a background sweeper.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	locks    map[string]memoryLock
	journal  []JournalEntry
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		locks:    make(map[string]memoryLock),
	}
}

var _ SessionStore = (*MemoryStore)(nil)

func (m *MemoryStore) Load(ctx context.Context, symbol, dayKey string) (*state.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sessions[sessionKey(symbol, dayKey)]
	if !ok {
		return nil, nil
	}
	var st state.SessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (m *MemoryStore) Save(ctx context.Context, st *state.SessionState, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionKey(st.Symbol, st.DayKey)] = data
	return nil
}

func (m *MemoryStore) TryAcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[key]; ok && time.Now().Before(l.expiresAt) {
		return false, nil
	}
	m.locks[key] = memoryLock{token: token, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (m *MemoryStore) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[key]; ok && l.token == token {
		delete(m.locks, key)
	}
	return nil
}

func (m *MemoryStore) AppendJournal(ctx context.Context, entry *JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = append(m.journal, *entry)
	return nil
}

// Journal returns a copy of the appended entries, oldest first.
func (m *MemoryStore) Journal() []JournalEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]JournalEntry, len(m.journal))
	copy(out, m.journal)
	return out
}
