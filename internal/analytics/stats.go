package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Overview summarizes portal activity over a time window.
type Overview struct {
	WindowSeconds    int64   `json:"window_seconds"`
	LimitDecisions   int64   `json:"limit_decisions"`
	LimitBlocked     int64   `json:"limit_blocked"`
	BlockRate        float64 `json:"block_rate"`
	Submissions      int64   `json:"submissions"`
	WrongSubmissions int64   `json:"wrong_submissions"`
	Solves           int64   `json:"solves"`
	ActiveUsers      int64   `json:"active_users"`
}

// TopBlockedSubject is a limiter key with the most denied attempts.
type TopBlockedSubject struct {
	Kind         string `json:"kind"`
	Subject      string `json:"subject"`
	BlockedCount int64  `json:"blocked_count"`
}

// ClueStats summarizes submissions for one clue.
type ClueStats struct {
	ClueKey     string  `json:"clue_key"`
	Submissions int64   `json:"submissions"`
	Correct     int64   `json:"correct"`
	Solves      int64   `json:"solves"`
	SuccessRate float64 `json:"success_rate"`
}

// TimelinePoint is a single bucket of rate-limit decisions.
type TimelinePoint struct {
	BucketStart time.Time `json:"bucket_start"`
	Allowed     int64     `json:"allowed"`
	Blocked     int64     `json:"blocked"`
	Total       int64     `json:"total"`
}

// QueryService provides read-only analytics queries backed by PostgreSQL.
type QueryService struct {
	db  *sql.DB
	now func() time.Time
}

// NewQueryService constructs an analytics query service.
func NewQueryService(db *sql.DB) (*QueryService, error) {
	if db == nil {
		return nil, fmt.Errorf("analytics: query service requires database connection")
	}

	return &QueryService{db: db, now: time.Now}, nil
}

// GetOverview returns top-level activity metrics for a time window.
func (s *QueryService) GetOverview(ctx context.Context, window time.Duration) (Overview, error) {
	if window <= 0 {
		return Overview{}, fmt.Errorf("analytics: window must be greater than zero")
	}

	since := s.now().Add(-window)

	out := Overview{WindowSeconds: int64(window.Seconds())}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN kind LIKE 'limit.%' THEN 1 ELSE 0 END), 0) AS limit_decisions,
			COALESCE(SUM(CASE WHEN kind LIKE 'limit.%' AND NOT ok THEN 1 ELSE 0 END), 0) AS limit_blocked,
			COALESCE(SUM(CASE WHEN kind = 'clue.submitted' THEN 1 ELSE 0 END), 0) AS submissions,
			COALESCE(SUM(CASE WHEN kind = 'clue.submitted' AND NOT ok THEN 1 ELSE 0 END), 0) AS wrong_submissions,
			COALESCE(SUM(CASE WHEN kind = 'clue.solved' THEN 1 ELSE 0 END), 0) AS solves,
			COUNT(DISTINCT CASE WHEN kind LIKE 'clue.%' THEN subject END) AS active_users
		FROM portal_events
		WHERE timestamp >= $1
	`, since).Scan(
		&out.LimitDecisions,
		&out.LimitBlocked,
		&out.Submissions,
		&out.WrongSubmissions,
		&out.Solves,
		&out.ActiveUsers,
	)
	if err != nil {
		return Overview{}, fmt.Errorf("analytics: overview query failed: %w", err)
	}

	if out.LimitDecisions > 0 {
		out.BlockRate = float64(out.LimitBlocked) / float64(out.LimitDecisions)
	}

	return out, nil
}

// GetTopBlocked returns limiter keys with the highest denied counts.
func (s *QueryService) GetTopBlocked(ctx context.Context, window time.Duration, limit int) ([]TopBlockedSubject, error) {
	if window <= 0 {
		return nil, fmt.Errorf("analytics: window must be greater than zero")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("analytics: limit must be greater than zero")
	}

	since := s.now().Add(-window)

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			kind,
			subject,
			COUNT(*) AS blocked_count
		FROM portal_events
		WHERE kind LIKE 'limit.%' AND ok = FALSE AND timestamp >= $1
		GROUP BY kind, subject
		ORDER BY blocked_count DESC, subject ASC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics: top-blocked query failed: %w", err)
	}
	defer rows.Close()

	out := make([]TopBlockedSubject, 0, limit)
	for rows.Next() {
		var item TopBlockedSubject
		if scanErr := rows.Scan(&item.Kind, &item.Subject, &item.BlockedCount); scanErr != nil {
			return nil, fmt.Errorf("analytics: failed scanning top-blocked row: %w", scanErr)
		}
		out = append(out, item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("analytics: top-blocked rows iteration failed: %w", rowsErr)
	}

	return out, nil
}

// GetClueStats returns per-clue submission statistics.
func (s *QueryService) GetClueStats(ctx context.Context, window time.Duration) ([]ClueStats, error) {
	if window <= 0 {
		return nil, fmt.Errorf("analytics: window must be greater than zero")
	}

	since := s.now().Add(-window)

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			clue_key,
			COALESCE(SUM(CASE WHEN kind = 'clue.submitted' THEN 1 ELSE 0 END), 0) AS submissions,
			COALESCE(SUM(CASE WHEN kind = 'clue.submitted' AND ok THEN 1 ELSE 0 END), 0) AS correct,
			COALESCE(SUM(CASE WHEN kind = 'clue.solved' THEN 1 ELSE 0 END), 0) AS solves
		FROM portal_events
		WHERE clue_key <> '' AND timestamp >= $1
		GROUP BY clue_key
		ORDER BY clue_key ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("analytics: clue stats query failed: %w", err)
	}
	defer rows.Close()

	out := make([]ClueStats, 0)
	for rows.Next() {
		var item ClueStats
		if scanErr := rows.Scan(&item.ClueKey, &item.Submissions, &item.Correct, &item.Solves); scanErr != nil {
			return nil, fmt.Errorf("analytics: failed scanning clue stats row: %w", scanErr)
		}
		if item.Submissions > 0 {
			item.SuccessRate = float64(item.Correct) / float64(item.Submissions)
		}
		out = append(out, item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("analytics: clue stats rows iteration failed: %w", rowsErr)
	}

	return out, nil
}

// GetTimeline returns allowed/blocked limiter decisions bucketed by interval.
func (s *QueryService) GetTimeline(ctx context.Context, window, bucket time.Duration) ([]TimelinePoint, error) {
	if window <= 0 {
		return nil, fmt.Errorf("analytics: window must be greater than zero")
	}
	if bucket <= 0 {
		return nil, fmt.Errorf("analytics: bucket must be greater than zero")
	}

	since := s.now().Add(-window)
	bucketSeconds := int64(bucket.Seconds())

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			to_timestamp(FLOOR(EXTRACT(EPOCH FROM timestamp) / $1) * $1)::timestamptz AS bucket_start,
			COALESCE(SUM(CASE WHEN ok THEN 1 ELSE 0 END), 0) AS allowed_count,
			COALESCE(SUM(CASE WHEN NOT ok THEN 1 ELSE 0 END), 0) AS blocked_count
		FROM portal_events
		WHERE kind LIKE 'limit.%' AND timestamp >= $2
		GROUP BY bucket_start
		ORDER BY bucket_start ASC
	`, bucketSeconds, since)
	if err != nil {
		return nil, fmt.Errorf("analytics: timeline query failed: %w", err)
	}
	defer rows.Close()

	out := make([]TimelinePoint, 0)
	for rows.Next() {
		var point TimelinePoint
		if scanErr := rows.Scan(&point.BucketStart, &point.Allowed, &point.Blocked); scanErr != nil {
			return nil, fmt.Errorf("analytics: failed scanning timeline row: %w", scanErr)
		}
		point.Total = point.Allowed + point.Blocked
		out = append(out, point)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("analytics: timeline rows iteration failed: %w", rowsErr)
	}

	return out, nil
}
