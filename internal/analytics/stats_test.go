package analytics

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockQueryService(t *testing.T) (*QueryService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	svc, err := NewQueryService(db)
	if err != nil {
		t.Fatalf("NewQueryService failed: %v", err)
	}
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, mock
}

func TestNewQueryService_NilDB(t *testing.T) {
	if _, err := NewQueryService(nil); err == nil {
		t.Fatal("expected error for nil database")
	}
}

func TestGetOverview(t *testing.T) {
	svc, mock := newMockQueryService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM portal_events")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"limit_decisions", "limit_blocked", "submissions", "wrong_submissions", "solves", "active_users",
		}).AddRow(20, 5, 12, 8, 4, 3))

	out, err := svc.GetOverview(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("GetOverview failed: %v", err)
	}
	if out.LimitBlocked != 5 || out.Solves != 4 || out.ActiveUsers != 3 {
		t.Fatalf("unexpected overview %+v", out)
	}
	if out.BlockRate != 0.25 {
		t.Fatalf("expected block rate 0.25, got %v", out.BlockRate)
	}
	if out.WindowSeconds != 3600 {
		t.Fatalf("expected window 3600s, got %d", out.WindowSeconds)
	}
}

func TestGetOverview_InvalidWindow(t *testing.T) {
	svc, _ := newMockQueryService(t)
	if _, err := svc.GetOverview(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestGetTopBlocked(t *testing.T) {
	svc, mock := newMockQueryService(t)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY kind, subject")).
		WithArgs(sqlmock.AnyArg(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "subject", "blocked_count"}).
			AddRow("limit.login", "10.0.0.1", 9).
			AddRow("limit.reset", "a@example.com", 4))

	out, err := svc.GetTopBlocked(context.Background(), time.Hour, 2)
	if err != nil {
		t.Fatalf("GetTopBlocked failed: %v", err)
	}
	if len(out) != 2 || out[0].Subject != "10.0.0.1" || out[0].BlockedCount != 9 {
		t.Fatalf("unexpected rows %+v", out)
	}

	if _, err := svc.GetTopBlocked(context.Background(), time.Hour, 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func TestGetClueStats(t *testing.T) {
	svc, mock := newMockQueryService(t)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY clue_key")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"clue_key", "submissions", "correct", "solves"}).
			AddRow("M1C1", 10, 2, 2).
			AddRow("M1C2", 0, 0, 0))

	out, err := svc.GetClueStats(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("GetClueStats failed: %v", err)
	}
	if len(out) != 2 || out[0].SuccessRate != 0.2 || out[1].SuccessRate != 0 {
		t.Fatalf("unexpected clue stats %+v", out)
	}
}

func TestGetTimeline(t *testing.T) {
	svc, mock := newMockQueryService(t)
	b1 := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	b2 := b1.Add(5 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("AS bucket_start")).
		WithArgs(int64(300), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"bucket_start", "allowed_count", "blocked_count"}).
			AddRow(b1, 7, 1).
			AddRow(b2, 3, 0))

	out, err := svc.GetTimeline(context.Background(), time.Hour, 5*time.Minute)
	if err != nil {
		t.Fatalf("GetTimeline failed: %v", err)
	}
	if len(out) != 2 || out[0].Total != 8 || !out[1].BucketStart.Equal(b2) {
		t.Fatalf("unexpected timeline %+v", out)
	}

	if _, err := svc.GetTimeline(context.Background(), time.Hour, 0); err == nil {
		t.Fatal("expected error for zero bucket")
	}
}
