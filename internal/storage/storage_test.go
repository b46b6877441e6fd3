package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// storeFactory returns a fresh, empty store for one subtest.
type storeFactory func(t *testing.T) ClueStateStore

func newTestMemoryStore(t *testing.T) ClueStateStore {
	t.Helper()
	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestSQLiteStore(t *testing.T) ClueStateStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestMiniredisStore(t *testing.T) ClueStateStore {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()

	s, err := NewRedisStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBackends(t *testing.T) {
	backends := map[string]storeFactory{
		"memory": newTestMemoryStore,
		"sqlite": newTestSQLiteStore,
		"redis":  newTestMiniredisStore,
	}

	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			runStoreSuite(t, factory)
		})
	}
}

// runStoreSuite exercises the ClueStateStore contract against one backend.
func runStoreSuite(t *testing.T, newStore storeFactory) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, found, err := s.Get(context.Background(), "u1", "M1C1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if found {
			t.Fatal("expected no record for fresh user")
		}
	})

	t.Run("EnsureRecordCreatesDefault", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec, err := s.EnsureRecord(ctx, "u1", "M1C1")
		if err != nil {
			t.Fatalf("EnsureRecord failed: %v", err)
		}
		if rec.UserID != "u1" || rec.ClueKey != "M1C1" || rec.Solved || rec.SolvedAt != nil {
			t.Fatalf("unexpected default record: %+v", rec)
		}
		if rec.CreatedAt.IsZero() {
			t.Fatal("expected CreatedAt to be set")
		}

		again, err := s.EnsureRecord(ctx, "u1", "M1C1")
		if err != nil {
			t.Fatalf("second EnsureRecord failed: %v", err)
		}
		if !again.CreatedAt.Equal(rec.CreatedAt) {
			t.Fatalf("expected existing record to be returned, got %+v", again)
		}
	})

	t.Run("EnsureRecordConcurrent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.EnsureRecord(ctx, "u1", "M1C2"); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent EnsureRecord failed: %v", err)
		}

		records, err := s.List(ctx, "u1")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected exactly one record, got %d", len(records))
		}
	})

	t.Run("MarkSolvedIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		if _, err := s.EnsureRecord(ctx, "u1", "M1C1"); err != nil {
			t.Fatalf("EnsureRecord failed: %v", err)
		}
		changed, err := s.MarkSolved(ctx, "u1", "M1C1", first)
		if err != nil || !changed {
			t.Fatalf("MarkSolved: changed=%v err=%v", changed, err)
		}
		changed, err = s.MarkSolved(ctx, "u1", "M1C1", first.Add(time.Hour))
		if err != nil || changed {
			t.Fatalf("second MarkSolved: changed=%v err=%v", changed, err)
		}

		rec, found, err := s.Get(ctx, "u1", "M1C1")
		if err != nil || !found {
			t.Fatalf("Get failed: found=%v err=%v", found, err)
		}
		if !rec.Solved || !rec.NextPageUnlocked() {
			t.Fatalf("expected solved record, got %+v", rec)
		}
		if rec.SolvedAt == nil || !rec.SolvedAt.Equal(first) {
			t.Fatalf("expected solvedAt %v to be preserved, got %v", first, rec.SolvedAt)
		}
	})

	t.Run("MarkSolvedWithoutRecord", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		if changed, err := s.MarkSolved(ctx, "u1", "M1C3", at); err != nil || !changed {
			t.Fatalf("MarkSolved: changed=%v err=%v", changed, err)
		}
		rec, found, err := s.Get(ctx, "u1", "M1C3")
		if err != nil || !found || !rec.Solved {
			t.Fatalf("expected upserted solved record, got %+v found=%v err=%v", rec, found, err)
		}
	})

	t.Run("ConcurrentMarkSolvedChangesOnce", func(t *testing.T) {
		s := newStore(t)
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			changes int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				changed, err := s.MarkSolved(context.Background(), "u1", "M1C1", at)
				if err != nil {
					t.Errorf("MarkSolved failed: %v", err)
					return
				}
				if changed {
					mu.Lock()
					changes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if changes != 1 {
			t.Fatalf("expected exactly one caller to flip the record, got %d", changes)
		}
	})

	t.Run("PredecessorUnlocked", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ok, err := s.PredecessorUnlocked(ctx, "u1", 1, 1)
		if err != nil || !ok {
			t.Fatalf("index 1 must always be unlocked, got %v err=%v", ok, err)
		}

		ok, err = s.PredecessorUnlocked(ctx, "u1", 1, 2)
		if err != nil || ok {
			t.Fatalf("expected M1C2 locked without a record, got %v err=%v", ok, err)
		}

		if _, err := s.EnsureRecord(ctx, "u1", "M1C1"); err != nil {
			t.Fatalf("EnsureRecord failed: %v", err)
		}
		ok, _ = s.PredecessorUnlocked(ctx, "u1", 1, 2)
		if ok {
			t.Fatal("expected M1C2 locked while M1C1 is unsolved")
		}

		if _, err := s.MarkSolved(ctx, "u1", "M1C1", time.Now()); err != nil {
			t.Fatalf("MarkSolved failed: %v", err)
		}
		ok, _ = s.PredecessorUnlocked(ctx, "u1", 1, 2)
		if !ok {
			t.Fatal("expected M1C2 unlocked after M1C1 solved")
		}

		ok, _ = s.PredecessorUnlocked(ctx, "u2", 1, 2)
		if ok {
			t.Fatal("progress must not leak across users")
		}
	})

	t.Run("Reset", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.MarkSolved(ctx, "u1", "M1C1", time.Now()); err != nil {
			t.Fatalf("MarkSolved failed: %v", err)
		}
		if err := s.Reset(ctx, "u1", "M1C1"); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}

		rec, found, err := s.Get(ctx, "u1", "M1C1")
		if err != nil || !found {
			t.Fatalf("expected record to survive reset, found=%v err=%v", found, err)
		}
		if rec.Solved || rec.SolvedAt != nil {
			t.Fatalf("expected defaults after reset, got %+v", rec)
		}

		if err := s.Reset(ctx, "u1", "M9C9"); err != nil {
			t.Fatalf("Reset of missing record must not fail: %v", err)
		}
		if _, found, _ := s.Get(ctx, "u1", "M9C9"); found {
			t.Fatal("Reset must not create records")
		}
	})

	t.Run("ListOrdersByClue", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, k := range []string{"M2C1", "M1C10", "M1C2", "M1C1"} {
			if _, err := s.EnsureRecord(ctx, "u1", k); err != nil {
				t.Fatalf("EnsureRecord(%s) failed: %v", k, err)
			}
		}
		if _, err := s.EnsureRecord(ctx, "u2", "M1C1"); err != nil {
			t.Fatalf("EnsureRecord failed: %v", err)
		}

		records, err := s.List(ctx, "u1")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"M1C1", "M1C2", "M1C10", "M2C1"}
		if len(records) != len(want) {
			t.Fatalf("expected %d records, got %d", len(want), len(records))
		}
		for i, k := range want {
			if records[i].ClueKey != k {
				t.Fatalf("position %d: expected %s, got %s", i, k, records[i].ClueKey)
			}
		}

		empty, err := s.List(ctx, "nobody")
		if err != nil || len(empty) != 0 {
			t.Fatalf("expected empty list, got %v err=%v", empty, err)
		}
	})

	t.Run("InvalidKey", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.EnsureRecord(context.Background(), "", "M1C1"); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey, got %v", err)
		}
		if _, err := s.MarkSolved(context.Background(), "u1", " ", time.Now()); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey, got %v", err)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Ping(ctx); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("second Close failed: %v", err)
		}
		if err := s.Ping(ctx); !errors.Is(err, ErrStorageClosed) {
			t.Fatalf("expected ErrStorageClosed, got %v", err)
		}
		if _, err := s.EnsureRecord(ctx, "u1", "M1C1"); !errors.Is(err, ErrStorageClosed) {
			t.Fatalf("expected ErrStorageClosed, got %v", err)
		}
	})
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()

	if cfg.Addr != "localhost:6379" {
		t.Errorf("expected addr localhost:6379, got %s", cfg.Addr)
	}
	if cfg.PoolSize != DefaultPoolSize {
		t.Errorf("expected pool size %d, got %d", DefaultPoolSize, cfg.PoolSize)
	}
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("expected max retries %d, got %d", DefaultMaxRetries, cfg.MaxRetries)
	}
	if cfg.DialTimeout != DefaultDialTimeout {
		t.Errorf("expected dial timeout %v, got %v", DefaultDialTimeout, cfg.DialTimeout)
	}
}

func TestRecordKeysShareHashTag(t *testing.T) {
	if got := recordKey("u1", "M1C2"); got != "cluegate:progress:{u1}:M1C2" {
		t.Fatalf("unexpected record key %q", got)
	}
	if got := indexKey("u1"); got != "cluegate:progress:{u1}:index" {
		t.Fatalf("unexpected index key %q", got)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), OpenConfig{Backend: "MEMORY"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected *MemoryStore, got %T", s)
	}

	s, err = Open(context.Background(), OpenConfig{Backend: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("Open sqlite failed: %v", err)
	}
	_ = s.Close()

	if _, err := Open(context.Background(), OpenConfig{Backend: "cassandra"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, err := Open(context.Background(), OpenConfig{Backend: "postgres"}); err == nil {
		t.Fatal("expected error for postgres without URL")
	}
}

func TestStoreInterfaceCompliance(t *testing.T) {
	var _ ClueStateStore = (*MemoryStore)(nil)
	var _ ClueStateStore = (*PostgresStore)(nil)
	var _ ClueStateStore = (*SQLiteStore)(nil)
	var _ ClueStateStore = (*RedisStore)(nil)
}
