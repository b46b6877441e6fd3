//go:build integration

package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Siruyy/cluegate/internal/storage/migrations"
)

// newLivePostgresStore migrates DATABASE_URL and truncates clue_progress.
// It skips the test if PostgreSQL is not available.
func newLivePostgresStore(t *testing.T) ClueStateStore {
	t.Helper()

	url := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	runner, err := migrations.NewRunner(url)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	if err := runner.Up(); err != nil {
		runner.Close()
		t.Fatalf("migrations failed: %v", err)
	}
	runner.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := NewPostgresStore(ctx, url)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, "TRUNCATE clue_progress"); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

func TestPostgresStore_Live(t *testing.T) {
	runStoreSuite(t, newLivePostgresStore)
}
