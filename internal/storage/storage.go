// Package storage provides the durable per-user clue progress store and
// its backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Siruyy/cluegate/internal/clue"
)

var (
	// ErrStorageClosed is returned when an operation is attempted on a closed storage.
	ErrStorageClosed = errors.New("storage: connection closed")

	// ErrInvalidKey is returned when a user id or clue key is blank.
	ErrInvalidKey = errors.New("storage: user id and clue key are required")
)

// Record is one user's progress on one clue.
type Record struct {
	UserID  string `json:"userId"`
	ClueKey string `json:"clueKey"`
	Solved  bool   `json:"solved"`
	// SolvedAt is set by the first successful MarkSolved and cleared by Reset.
	SolvedAt  *time.Time `json:"solvedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NextPageUnlocked reports whether the clue following this one may be
// shown. It is derived from Solved; the two are never stored separately.
func (r Record) NextPageUnlocked() bool {
	return r.Solved
}

// ClueStateStore is the source of truth for clue progression.
// All methods must be safe for concurrent use and are scoped to one user.
type ClueStateStore interface {
	// Get returns the record for (userID, clueKey). The bool is false when
	// no record exists.
	Get(ctx context.Context, userID, clueKey string) (Record, bool, error)

	// PredecessorUnlocked reports whether clue (month, index) may be shown:
	// true when index is 1, or when the record for (month, index-1) exists
	// and is solved.
	PredecessorUnlocked(ctx context.Context, userID string, month, index int) (bool, error)

	// EnsureRecord returns the existing record or atomically inserts a
	// default unsolved one. Concurrent first visits yield a single record.
	EnsureRecord(ctx context.Context, userID, clueKey string) (Record, error)

	// MarkSolved sets solved=true and solvedAt. Calling it on an already
	// solved record is a no-op and keeps the original solvedAt. changed is
	// true only for the call that flipped the record, so exactly one of any
	// set of concurrent callers observes it.
	MarkSolved(ctx context.Context, userID, clueKey string, solvedAt time.Time) (changed bool, err error)

	// Reset restores a record to its unsolved defaults. Resetting a
	// missing record is not an error.
	Reset(ctx context.Context, userID, clueKey string) error

	// List returns every record for userID ordered by clue.
	List(ctx context.Context, userID string) ([]Record, error)

	// Ping checks the health of the storage backend.
	Ping(ctx context.Context) error

	// Close gracefully shuts down the storage connection.
	Close() error
}

type recordGetter interface {
	Get(ctx context.Context, userID, clueKey string) (Record, bool, error)
}

// predecessorUnlocked implements PredecessorUnlocked on top of Get.
func predecessorUnlocked(ctx context.Context, s recordGetter, userID string, month, index int) (bool, error) {
	prev, ok := clue.Key{Month: month, Index: index}.Previous()
	if !ok {
		return true, nil
	}

	rec, found, err := s.Get(ctx, userID, prev.String())
	if err != nil {
		return false, err
	}
	return found && rec.NextPageUnlocked(), nil
}

func validateKey(userID, clueKey string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(clueKey) == "" {
		return ErrInvalidKey
	}
	return nil
}

// sortRecords orders records by clue position, falling back to the raw key
// for keys that do not parse.
func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, errA := clue.ParseKey(records[i].ClueKey)
		b, errB := clue.ParseKey(records[j].ClueKey)
		if errA == nil && errB == nil {
			return a.Less(b)
		}
		return records[i].ClueKey < records[j].ClueKey
	})
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// OpenConfig selects and configures a backend for Open.
type OpenConfig struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
	Redis       RedisConfig
}

// Open constructs the configured ClueStateStore.
func Open(ctx context.Context, cfg OpenConfig) (ClueStateStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case BackendSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
