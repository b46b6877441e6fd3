package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS clue_progress (
    user_id    TEXT      NOT NULL,
    clue_key   TEXT      NOT NULL,
    solved     BOOLEAN   NOT NULL DEFAULT 0,
    solved_at  TIMESTAMP NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, clue_key)
);
CREATE INDEX IF NOT EXISTS idx_clue_progress_user ON clue_progress (user_id);
`

var sqliteQueries = sqlQueries{
	get: `SELECT user_id, clue_key, solved, solved_at, created_at
FROM clue_progress
WHERE user_id = ? AND clue_key = ?`,
	ensure: `INSERT OR IGNORE INTO clue_progress (user_id, clue_key, solved, created_at)
VALUES (?, ?, 0, ?)`,
	markSolved: `INSERT INTO clue_progress (user_id, clue_key, solved, solved_at, created_at)
VALUES (?1, ?2, 1, ?3, ?3)
ON CONFLICT (user_id, clue_key) DO UPDATE
SET solved = 1, solved_at = excluded.solved_at
WHERE clue_progress.solved = 0`,
	reset: `UPDATE clue_progress
SET solved = 0, solved_at = NULL
WHERE user_id = ? AND clue_key = ?`,
	list: `SELECT user_id, clue_key, solved, solved_at, created_at
FROM clue_progress
WHERE user_id = ?`,
}

// SQLiteStore persists progress in a single SQLite file. It suits
// single-node deployments and the admin CLI.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens path (":memory:" for an ephemeral database) and
// creates the schema if needed.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}

	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open %q: %w", path, err)
	}
	// SQLite serializes writers; a single connection also keeps a
	// :memory: database alive and shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	slog.Info("sqlite: clue progress store opened", "path", path)
	return &SQLiteStore{sqlStore: newSQLStore("sqlite", db, sqliteQueries)}, nil
}
