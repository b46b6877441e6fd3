package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps progress in process memory. It is intended for
// development and tests; state is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*Record
	closed  bool
	now     func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[string]*Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a copy of the stored record.
func (m *MemoryStore) Get(_ context.Context, userID, clueKey string) (Record, bool, error) {
	if err := validateKey(userID, clueKey); err != nil {
		return Record{}, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Record{}, false, ErrStorageClosed
	}

	rec, ok := m.records[userID][clueKey]
	if !ok {
		return Record{}, false, nil
	}
	return copyRecord(rec), true, nil
}

// PredecessorUnlocked reports whether the predecessor of (month, index) is solved.
func (m *MemoryStore) PredecessorUnlocked(ctx context.Context, userID string, month, index int) (bool, error) {
	return predecessorUnlocked(ctx, m, userID, month, index)
}

// EnsureRecord inserts a default record if none exists.
func (m *MemoryStore) EnsureRecord(_ context.Context, userID, clueKey string) (Record, error) {
	if err := validateKey(userID, clueKey); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Record{}, ErrStorageClosed
	}

	return copyRecord(m.ensureLocked(userID, clueKey)), nil
}

// MarkSolved marks the record solved once.
func (m *MemoryStore) MarkSolved(_ context.Context, userID, clueKey string, solvedAt time.Time) (bool, error) {
	if err := validateKey(userID, clueKey); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrStorageClosed
	}

	rec := m.ensureLocked(userID, clueKey)
	if rec.Solved {
		return false, nil
	}
	at := solvedAt.UTC()
	rec.Solved = true
	rec.SolvedAt = &at
	return true, nil
}

// Reset clears solved state for the record, if present.
func (m *MemoryStore) Reset(_ context.Context, userID, clueKey string) error {
	if err := validateKey(userID, clueKey); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if rec, ok := m.records[userID][clueKey]; ok {
		rec.Solved = false
		rec.SolvedAt = nil
	}
	return nil
}

// List returns all of a user's records ordered by clue.
func (m *MemoryStore) List(_ context.Context, userID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	out := make([]Record, 0, len(m.records[userID]))
	for _, rec := range m.records[userID] {
		out = append(out, copyRecord(rec))
	}
	sortRecords(out)
	return out, nil
}

// Ping reports whether the store is open.
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrStorageClosed
	}
	return nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// ensureLocked returns the live record, creating it if needed. Caller holds m.mu.
func (m *MemoryStore) ensureLocked(userID, clueKey string) *Record {
	byKey, ok := m.records[userID]
	if !ok {
		byKey = make(map[string]*Record)
		m.records[userID] = byKey
	}
	rec, ok := byKey[clueKey]
	if !ok {
		rec = &Record{UserID: userID, ClueKey: clueKey, CreatedAt: m.now()}
		byKey[clueKey] = rec
	}
	return rec
}

func copyRecord(rec *Record) Record {
	out := *rec
	if rec.SolvedAt != nil {
		at := *rec.SolvedAt
		out.SolvedAt = &at
	}
	return out
}
