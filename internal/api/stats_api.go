package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Siruyy/cluegate/internal/analytics"
	"github.com/Siruyy/cluegate/internal/clue"
	cluegatehttp "github.com/Siruyy/cluegate/internal/httputil"
)

const (
	defaultWindow = 24 * time.Hour
	defaultLimit  = 10
	maxLimit      = 100
	defaultBucket = 5 * time.Minute
	minBucket     = 1 * time.Minute
	maxBucket     = 24 * time.Hour
)

// StatsProvider exposes analytics read models required by the stats API.
type StatsProvider interface {
	GetOverview(ctx context.Context, window time.Duration) (analytics.Overview, error)
	GetTopBlocked(ctx context.Context, window time.Duration, limit int) ([]analytics.TopBlockedSubject, error)
	GetClueStats(ctx context.Context, window time.Duration) ([]analytics.ClueStats, error)
	GetTimeline(ctx context.Context, window, bucket time.Duration) ([]analytics.TimelinePoint, error)
}

// StatsHandler serves the portal analytics endpoints.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a stats API handler.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// ServeHTTP handles:
// - GET /api/stats/overview
// - GET /api/stats/top-blocked
// - GET /api/stats/clues[?clue=M1C2]
// - GET /api/stats/timeline
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/api/stats" || path == "/api/stats/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, errMethodNotAllowed(w, http.MethodGet))
		return
	}

	if h.provider == nil {
		writeError(w, errUnavailable("analytics service unavailable"))
		return
	}

	window, err := parseDurationQuery(r, "window", defaultWindow)
	if err != nil {
		writeError(w, errValidation(err.Error()))
		return
	}

	switch {
	case path == "/api/stats/overview":
		h.handleOverview(w, r, window)
	case path == "/api/stats/top-blocked":
		h.handleTopBlocked(w, r, window)
	case path == "/api/stats/timeline":
		h.handleTimeline(w, r, window)
	case path == "/api/stats/clues":
		h.handleClueStats(w, r, window)
	default:
		http.NotFound(w, r)
	}
}

func (h *StatsHandler) handleOverview(w http.ResponseWriter, r *http.Request, window time.Duration) {
	result, err := h.provider.GetOverview(r.Context(), window)
	if err != nil {
		writeError(w, errUpstream("failed to fetch overview stats"))
		return
	}

	cluegatehttp.WriteJSON(w, http.StatusOK, map[string]any{"data": result})
}

func (h *StatsHandler) handleTopBlocked(w http.ResponseWriter, r *http.Request, window time.Duration) {
	limit, err := parseLimitQuery(r, defaultLimit, maxLimit)
	if err != nil {
		writeError(w, errValidation(err.Error()))
		return
	}

	result, queryErr := h.provider.GetTopBlocked(r.Context(), window, limit)
	if queryErr != nil {
		writeError(w, errUpstream("failed to fetch top blocked subjects"))
		return
	}

	cluegatehttp.WriteJSON(w, http.StatusOK, map[string]any{"data": result})
}

func (h *StatsHandler) handleClueStats(w http.ResponseWriter, r *http.Request, window time.Duration) {
	var filter string
	if raw := strings.TrimSpace(r.URL.Query().Get("clue")); raw != "" {
		key, err := clue.ParseKey(raw)
		if err != nil {
			writeError(w, errValidation("clue must look like M1C2"))
			return
		}
		filter = key.String()
	}

	result, err := h.provider.GetClueStats(r.Context(), window)
	if err != nil {
		writeError(w, errUpstream("failed to fetch clue stats"))
		return
	}

	if filter != "" {
		filtered := make([]analytics.ClueStats, 0, 1)
		for _, row := range result {
			if row.ClueKey == filter {
				filtered = append(filtered, row)
			}
		}
		result = filtered
	}

	cluegatehttp.WriteJSON(w, http.StatusOK, map[string]any{"data": result})
}

func (h *StatsHandler) handleTimeline(w http.ResponseWriter, r *http.Request, window time.Duration) {
	bucket, err := parseDurationQuery(r, "bucket", defaultBucket)
	if err != nil {
		writeError(w, errValidation(err.Error()))
		return
	}

	if bucket < minBucket || bucket > maxBucket {
		writeError(w, errValidation("bucket must be between 1m and 24h"))
		return
	}

	result, queryErr := h.provider.GetTimeline(r.Context(), window, bucket)
	if queryErr != nil {
		writeError(w, errUpstream("failed to fetch timeline stats"))
		return
	}

	cluegatehttp.WriteJSON(w, http.StatusOK, map[string]any{"data": result})
}

func parseLimitQuery(r *http.Request, fallback, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errBadQuery("limit must be a positive integer")
	}

	if parsed > max {
		return max, nil
	}

	return parsed, nil
}

func parseDurationQuery(r *http.Request, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil || parsed <= 0 {
		return 0, errBadQuery(key + " must be a valid positive duration (for example: 15m, 1h, 7d)")
	}

	return parsed, nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if strings.HasSuffix(raw, "d") {
		daysRaw := strings.TrimSuffix(raw, "d")
		days, err := strconv.Atoi(daysRaw)
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	return time.ParseDuration(raw)
}

type badQueryError struct {
	message string
}

func (e badQueryError) Error() string {
	return e.message
}

func errBadQuery(message string) error {
	return badQueryError{message: message}
}
