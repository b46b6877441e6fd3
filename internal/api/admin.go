package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Siruyy/cluegate/internal/gate"
	cluegatehttp "github.com/Siruyy/cluegate/internal/httputil"
)

// AdminResetRequest is the body of POST /api/admin/progress/reset.
type AdminResetRequest struct {
	UserID string `json:"userId"`
	Month  int    `json:"month"`
	Clue   int    `json:"clue"`
}

type catalogEntry struct {
	ClueKey string `json:"clueKey"`
	Month   int    `json:"month"`
	Clue    int    `json:"clue"`
	Answers int    `json:"answers"`
	Final   bool   `json:"final"`
}

// AdminHandler serves the administrative progress endpoints. Wrap it with
// RequireAdminToken.
type AdminHandler struct {
	gate   *gate.Gate
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(g *gate.Gate, logger *slog.Logger) (*AdminHandler, error) {
	if g == nil {
		return nil, errors.New("api: gate is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{gate: g, logger: logger}, nil
}

// ServeHTTP handles:
// - GET /api/admin/progress?user=
// - POST /api/admin/progress/reset
// - GET /api/admin/catalog
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/admin/progress":
		if r.Method != http.MethodGet {
			writeError(w, errMethodNotAllowed(w, http.MethodGet))
			return
		}
		h.handleProgress(w, r)
	case "/api/admin/progress/reset":
		if r.Method != http.MethodPost {
			writeError(w, errMethodNotAllowed(w, http.MethodPost))
			return
		}
		h.handleReset(w, r)
	case "/api/admin/catalog":
		if r.Method != http.MethodGet {
			writeError(w, errMethodNotAllowed(w, http.MethodGet))
			return
		}
		h.handleCatalog(w)
	default:
		http.NotFound(w, r)
	}
}

func (h *AdminHandler) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		writeError(w, errValidation("user is required"))
		return
	}

	rows, err := h.gate.Progress(r.Context(), userID)
	if err != nil {
		h.logger.Error("admin progress lookup failed", "user_id", userID, "error", err)
		writeError(w, errUpstream("failed to load progress"))
		return
	}

	cluegatehttp.WriteJSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (h *AdminHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req AdminResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, errValidation(err.Error()))
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, errValidation("userId is required"))
		return
	}
	if req.Month <= 0 || req.Clue <= 0 {
		writeError(w, errValidation("month and clue must be positive integers"))
		return
	}

	if err := h.gate.Reset(r.Context(), req.UserID, req.Month, req.Clue); err != nil {
		if errors.Is(err, gate.ErrUnknownClue) {
			writeError(w, errNotFound("clue not found"))
			return
		}
		h.logger.Error("admin progress reset failed", "user_id", req.UserID, "error", err)
		writeError(w, errUpstream("failed to reset progress"))
		return
	}

	h.logger.Info("progress reset", "user_id", req.UserID, "month", req.Month, "clue", req.Clue)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleCatalog(w http.ResponseWriter) {
	defs := h.gate.Catalog().All()
	out := make([]catalogEntry, 0, len(defs))
	for _, def := range defs {
		out = append(out, catalogEntry{
			ClueKey: def.Key().String(),
			Month:   def.Month,
			Clue:    def.Index,
			Answers: len(def.Answers),
			Final:   def.Final,
		})
	}
	cluegatehttp.WriteJSON(w, http.StatusOK, map[string]any{"data": out})
}

// decodeJSON is the strict decoder for admin payloads: unknown fields and
// trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, cluegatehttp.MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

// RequireAdminToken guards next with a static token read from
// "Authorization: Bearer" or X-Admin-Token. An empty expected token
// disables the admin surface.
func RequireAdminToken(expectedToken string, next http.Handler) http.Handler {
	expectedToken = strings.TrimSpace(expectedToken)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if expectedToken == "" {
			writeError(w, errForbidden("admin API token not configured"))
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" {
			token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="cluegate-admin"`)
			writeError(w, &Error{Status: http.StatusUnauthorized, Reason: ReasonUnauthenticated, Message: "missing admin token"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			writeError(w, errForbidden("invalid admin token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
