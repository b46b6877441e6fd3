package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Siruyy/cluegate/internal/analytics"
)

type fakeStatsProvider struct {
	overviewResult   analytics.Overview
	topBlockedResult []analytics.TopBlockedSubject
	clueStatsResult  []analytics.ClueStats
	timelineResult   []analytics.TimelinePoint

	err error

	lastOverviewWindow time.Duration
	lastTopWindow      time.Duration
	lastTopLimit       int
	lastClueWindow     time.Duration
	lastTimelineWindow time.Duration
	lastTimelineBucket time.Duration
}

func (f *fakeStatsProvider) GetOverview(_ context.Context, window time.Duration) (analytics.Overview, error) {
	f.lastOverviewWindow = window
	if f.err != nil {
		return analytics.Overview{}, f.err
	}

	return f.overviewResult, nil
}

func (f *fakeStatsProvider) GetTopBlocked(_ context.Context, window time.Duration, limit int) ([]analytics.TopBlockedSubject, error) {
	f.lastTopWindow = window
	f.lastTopLimit = limit
	if f.err != nil {
		return nil, f.err
	}

	return f.topBlockedResult, nil
}

func (f *fakeStatsProvider) GetClueStats(_ context.Context, window time.Duration) ([]analytics.ClueStats, error) {
	f.lastClueWindow = window
	if f.err != nil {
		return nil, f.err
	}

	return f.clueStatsResult, nil
}

func (f *fakeStatsProvider) GetTimeline(_ context.Context, window, bucket time.Duration) ([]analytics.TimelinePoint, error) {
	f.lastTimelineWindow = window
	f.lastTimelineBucket = bucket
	if f.err != nil {
		return nil, f.err
	}

	return f.timelineResult, nil
}

func TestStatsAPI_Overview(t *testing.T) {
	fake := &fakeStatsProvider{
		overviewResult: analytics.Overview{
			WindowSeconds:  3600,
			LimitDecisions: 100,
			LimitBlocked:   10,
			BlockRate:      0.10,
			Submissions:    40,
			Solves:         12,
			ActiveUsers:    25,
		},
	}

	h := NewStatsHandler(fake)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats/overview?window=1h", nil)

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d body=%s", http.StatusOK, w.Code, w.Body.String())
	}

	if fake.lastOverviewWindow != time.Hour {
		t.Fatalf("expected window %v, got %v", time.Hour, fake.lastOverviewWindow)
	}

	var payload struct {
		Data analytics.Overview `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if payload.Data.LimitDecisions != 100 {
		t.Fatalf("expected limit_decisions=100, got %d", payload.Data.LimitDecisions)
	}
	if payload.Data.Solves != 12 {
		t.Fatalf("expected solves=12, got %d", payload.Data.Solves)
	}
}

func TestStatsAPI_TopBlocked(t *testing.T) {
	fake := &fakeStatsProvider{
		topBlockedResult: []analytics.TopBlockedSubject{{Kind: "limit.login", Subject: "10.0.0.1", BlockedCount: 42}},
	}

	h := NewStatsHandler(fake)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats/top-blocked?window=2h&limit=15", nil)

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d body=%s", http.StatusOK, w.Code, w.Body.String())
	}

	if fake.lastTopWindow != 2*time.Hour {
		t.Fatalf("expected window %v, got %v", 2*time.Hour, fake.lastTopWindow)
	}
	if fake.lastTopLimit != 15 {
		t.Fatalf("expected limit 15, got %d", fake.lastTopLimit)
	}
}

func TestStatsAPI_ClueStats(t *testing.T) {
	fake := &fakeStatsProvider{
		clueStatsResult: []analytics.ClueStats{
			{ClueKey: "M1C1", Submissions: 5, Correct: 2, Solves: 2, SuccessRate: 0.4},
			{ClueKey: "M1C2", Submissions: 3, Correct: 1, Solves: 1},
		},
	}

	h := NewStatsHandler(fake)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats/clues?window=30m", nil)

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d body=%s", http.StatusOK, w.Code, w.Body.String())
	}
	if fake.lastClueWindow != 30*time.Minute {
		t.Fatalf("expected window 30m, got %v", fake.lastClueWindow)
	}

	var payload struct {
		Data []analytics.ClueStats `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.Data) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(payload.Data))
	}
}

func TestStatsAPI_ClueStatsFilter(t *testing.T) {
	fake := &fakeStatsProvider{
		clueStatsResult: []analytics.ClueStats{
			{ClueKey: "M1C1", Submissions: 5},
			{ClueKey: "M1C2", Submissions: 3},
		},
	}

	h := NewStatsHandler(fake)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats/clues?clue=m1c2", nil)

	h.ServeHTTP(w, req)

	var payload struct {
		Data []analytics.ClueStats `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.Data) != 1 || payload.Data[0].ClueKey != "M1C2" {
		t.Fatalf("expected only M1C2, got %+v", payload.Data)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats/clues?clue=banana", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestStatsAPI_Timeline(t *testing.T) {
	fake := &fakeStatsProvider{
		timelineResult: []analytics.TimelinePoint{{Allowed: 10, Blocked: 2, Total: 12}},
	}

	h := NewStatsHandler(fake)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats/timeline?window=24h&bucket=1h", nil)

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d body=%s", http.StatusOK, w.Code, w.Body.String())
	}

	if fake.lastTimelineWindow != 24*time.Hour {
		t.Fatalf("expected window 24h, got %v", fake.lastTimelineWindow)
	}
	if fake.lastTimelineBucket != time.Hour {
		t.Fatalf("expected bucket 1h, got %v", fake.lastTimelineBucket)
	}
}

func TestStatsAPI_ServiceUnavailable(t *testing.T) {
	h := NewStatsHandler(nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats/overview", nil)

	h.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d body=%s", http.StatusServiceUnavailable, w.Code, w.Body.String())
	}
	if body := decodeErrorBody(t, w); body.Reason != ReasonUnavailable {
		t.Fatalf("expected reason %q, got %+v", ReasonUnavailable, body)
	}
}

func TestStatsAPI_BadDuration(t *testing.T) {
	h := NewStatsHandler(&fakeStatsProvider{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats/overview?window=banana", nil)

	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if body := decodeErrorBody(t, w); body.Reason != ReasonValidation || body.Error == "" {
		t.Fatalf("expected validation error body, got %+v", body)
	}
}

func TestStatsAPI_BadLimit(t *testing.T) {
	h := NewStatsHandler(&fakeStatsProvider{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats/top-blocked?limit=0", nil)

	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestStatsAPI_MethodNotAllowed(t *testing.T) {
	h := NewStatsHandler(&fakeStatsProvider{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/stats/overview", nil)

	h.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
	if w.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("expected Allow: GET, got %q", w.Header().Get("Allow"))
	}
	if body := decodeErrorBody(t, w); body.Reason != ReasonMethodNotAllowed {
		t.Fatalf("expected reason %q, got %+v", ReasonMethodNotAllowed, body)
	}
}

func TestStatsAPI_ProviderError(t *testing.T) {
	h := NewStatsHandler(&fakeStatsProvider{err: errors.New("query failed")})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats/overview", nil)

	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	body := decodeErrorBody(t, w)
	if body.Reason != ReasonUpstream || body.Error != "failed to fetch overview stats" {
		t.Fatalf("unexpected error body %+v", body)
	}
}
