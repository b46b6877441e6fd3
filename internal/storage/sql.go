package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// sqlQueries holds the dialect-specific statements used by sqlStore.
// Placeholders are positional in the order documented on each field.
type sqlQueries struct {
	// get: user_id, clue_key
	get string
	// ensure: user_id, clue_key, created_at. Must ignore conflicts.
	ensure string
	// markSolved: user_id, clue_key, solved_at. Must only update unsolved rows.
	markSolved string
	// reset: user_id, clue_key
	reset string
	// list: user_id
	list string
}

// sqlStore is the database/sql implementation shared by the Postgres and
// SQLite backends.
type sqlStore struct {
	name string
	db   *sql.DB
	q    sqlQueries
	now  func() time.Time

	mu     sync.RWMutex
	closed bool
}

func newSQLStore(name string, db *sql.DB, q sqlQueries) *sqlStore {
	return &sqlStore{
		name: name,
		db:   db,
		q:    q,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *sqlStore) Get(ctx context.Context, userID, clueKey string) (Record, bool, error) {
	if err := validateKey(userID, clueKey); err != nil {
		return Record{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, false, ErrStorageClosed
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.q.get, userID, clueKey))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("%s: get %s/%s failed: %w", s.name, userID, clueKey, err)
	}
	return rec, true, nil
}

func (s *sqlStore) PredecessorUnlocked(ctx context.Context, userID string, month, index int) (bool, error) {
	return predecessorUnlocked(ctx, s, userID, month, index)
}

func (s *sqlStore) EnsureRecord(ctx context.Context, userID, clueKey string) (Record, error) {
	if err := validateKey(userID, clueKey); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrStorageClosed
	}

	// A conflicting concurrent insert is ignored by the statement; the
	// read below then observes whichever row won.
	if _, err := s.db.ExecContext(ctx, s.q.ensure, userID, clueKey, s.now()); err != nil {
		return Record{}, fmt.Errorf("%s: ensure %s/%s failed: %w", s.name, userID, clueKey, err)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.q.get, userID, clueKey))
	if err != nil {
		return Record{}, fmt.Errorf("%s: read back %s/%s failed: %w", s.name, userID, clueKey, err)
	}
	return rec, nil
}

// MarkSolved relies on the upsert's WHERE clause: an already solved row
// is left untouched and reports zero affected rows.
func (s *sqlStore) MarkSolved(ctx context.Context, userID, clueKey string, solvedAt time.Time) (bool, error) {
	if err := validateKey(userID, clueKey); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrStorageClosed
	}

	res, err := s.db.ExecContext(ctx, s.q.markSolved, userID, clueKey, solvedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("%s: mark solved %s/%s failed: %w", s.name, userID, clueKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: mark solved %s/%s rows affected: %w", s.name, userID, clueKey, err)
	}
	return n == 1, nil
}

func (s *sqlStore) Reset(ctx context.Context, userID, clueKey string) error {
	if err := validateKey(userID, clueKey); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStorageClosed
	}

	if _, err := s.db.ExecContext(ctx, s.q.reset, userID, clueKey); err != nil {
		return fmt.Errorf("%s: reset %s/%s failed: %w", s.name, userID, clueKey, err)
	}
	return nil
}

func (s *sqlStore) List(ctx context.Context, userID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	rows, err := s.db.QueryContext(ctx, s.q.list, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: list %s failed: %w", s.name, userID, err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan record failed: %w", s.name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: list rows failed: %w", s.name, err)
	}

	sortRecords(out)
	return out, nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStorageClosed
	}

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: ping failed: %w", s.name, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *sqlStore) DB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec      Record
		solvedAt sql.NullTime
	)
	if err := row.Scan(&rec.UserID, &rec.ClueKey, &rec.Solved, &solvedAt, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	if solvedAt.Valid {
		at := solvedAt.Time.UTC()
		rec.SolvedAt = &at
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
