package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

var postgresQueries = sqlQueries{
	get: `SELECT user_id, clue_key, solved, solved_at, created_at
FROM clue_progress
WHERE user_id = $1 AND clue_key = $2`,
	ensure: `INSERT INTO clue_progress (user_id, clue_key, solved, created_at)
VALUES ($1, $2, FALSE, $3)
ON CONFLICT (user_id, clue_key) DO NOTHING`,
	markSolved: `INSERT INTO clue_progress (user_id, clue_key, solved, solved_at, created_at)
VALUES ($1, $2, TRUE, $3, $3)
ON CONFLICT (user_id, clue_key) DO UPDATE
SET solved = TRUE, solved_at = EXCLUDED.solved_at
WHERE clue_progress.solved = FALSE`,
	reset: `UPDATE clue_progress
SET solved = FALSE, solved_at = NULL
WHERE user_id = $1 AND clue_key = $2`,
	list: `SELECT user_id, clue_key, solved, solved_at, created_at
FROM clue_progress
WHERE user_id = $1`,
}

// PostgresStore persists progress in the clue_progress table. The schema is
// managed by the migrations package.
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore opens and pings a PostgreSQL database.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres: database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}

	slog.Info("postgres: clue progress store connected")
	return NewPostgresStoreFromDB(db), nil
}

// NewPostgresStoreFromDB wraps an existing connection pool. The store takes
// ownership of db and closes it on Close.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlStore: newSQLStore("postgres", db, postgresQueries)}
}
