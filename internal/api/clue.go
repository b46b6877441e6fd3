package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Siruyy/cluegate/internal/clue"
	"github.com/Siruyy/cluegate/internal/gate"
	cluegatehttp "github.com/Siruyy/cluegate/internal/httputil"
	"github.com/Siruyy/cluegate/internal/identity"
)

type evaluateResponse struct {
	State   gate.State   `json:"state"`
	ClueKey string       `json:"clueKey"`
	Final   bool         `json:"final"`
	Reward  *clue.Reward `json:"reward,omitempty"`
}

type submitRequest struct {
	Month  int    `json:"month"`
	Clue   int    `json:"clue"`
	Answer string `json:"answer"`
}

type submitResponse struct {
	Correct       bool         `json:"correct"`
	AlreadySolved bool         `json:"alreadySolved,omitempty"`
	Final         bool         `json:"final,omitempty"`
	Reward        *clue.Reward `json:"reward,omitempty"`
}

type lockedResponse struct {
	Error   string     `json:"error"`
	Reason  Reason     `json:"reason"`
	State   gate.State `json:"state"`
	ClueKey string     `json:"clueKey"`
}

type progressResponse struct {
	Data      []gate.ClueProgress `json:"data"`
	Completed bool                `json:"completed"`
}

// ClueHandler serves the authenticated clue endpoints.
type ClueHandler struct {
	gate     *gate.Gate
	identity identity.Provider
	logger   *slog.Logger
}

// NewClueHandler creates a ClueHandler. A nil logger uses slog.Default.
func NewClueHandler(g *gate.Gate, provider identity.Provider, logger *slog.Logger) (*ClueHandler, error) {
	if g == nil {
		return nil, errors.New("api: gate is required")
	}
	if provider == nil {
		return nil, errors.New("api: identity provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClueHandler{gate: g, identity: provider, logger: logger}, nil
}

// ServeHTTP handles:
// - GET /evaluate-clue?month=&clue=
// - POST /submit-answer
// - GET /progress
func (h *ClueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var method string
	switch r.URL.Path {
	case "/evaluate-clue", "/progress":
		method = http.MethodGet
	case "/submit-answer":
		method = http.MethodPost
	default:
		http.NotFound(w, r)
		return
	}
	if r.Method != method {
		writeError(w, errMethodNotAllowed(w, method))
		return
	}

	userID, ok, err := h.identity.CurrentUserID(r)
	if err != nil {
		h.logger.Error("identity lookup failed", "error", err)
		writeError(w, errUpstream("Unable to verify session."))
		return
	}
	if !ok {
		writeError(w, errUnauthenticated())
		return
	}

	switch r.URL.Path {
	case "/evaluate-clue":
		h.handleEvaluate(w, r, userID)
	case "/submit-answer":
		h.handleSubmit(w, r, userID)
	case "/progress":
		h.handleProgress(w, r, userID)
	}
}

func (h *ClueHandler) handleEvaluate(w http.ResponseWriter, r *http.Request, userID string) {
	query := r.URL.Query()
	month, err := parsePosition(query.Get("month"), "month-")
	if err != nil {
		writeError(w, errValidation("month must be a positive integer"))
		return
	}
	index, err := parsePosition(query.Get("clue"), "clue-")
	if err != nil {
		writeError(w, errValidation("clue must be a positive integer"))
		return
	}

	eval, err := h.gate.Evaluate(r.Context(), userID, month, index)
	if err != nil {
		h.writeGateError(w, err)
		return
	}

	cluegatehttp.WriteJSON(w, http.StatusOK, evaluateResponse{
		State:   eval.State,
		ClueKey: eval.Key.String(),
		Final:   eval.Final,
		Reward:  eval.Reward,
	})
}

func (h *ClueHandler) handleSubmit(w http.ResponseWriter, r *http.Request, userID string) {
	var req submitRequest
	if err := cluegatehttp.DecodeJSON(w, r, &req); err != nil {
		writeError(w, errValidation("month, clue and answer are required"))
		return
	}
	if req.Month <= 0 || req.Clue <= 0 {
		writeError(w, errValidation("month and clue must be positive integers"))
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		writeError(w, errValidation("answer is required"))
		return
	}

	eval, err := h.gate.Evaluate(r.Context(), userID, req.Month, req.Clue)
	if err != nil {
		h.writeGateError(w, err)
		return
	}
	if eval.State == gate.StateLocked {
		cluegatehttp.WriteJSON(w, http.StatusForbidden, lockedResponse{
			Error:   "clue is locked",
			Reason:  ReasonLocked,
			State:   gate.StateLocked,
			ClueKey: eval.Key.String(),
		})
		return
	}

	result, err := h.gate.Submit(r.Context(), userID, req.Month, req.Clue, req.Answer)
	if err != nil {
		h.writeGateError(w, err)
		return
	}

	cluegatehttp.WriteJSON(w, http.StatusOK, submitResponse{
		Correct:       result.Correct,
		AlreadySolved: result.AlreadySolved,
		Final:         result.Final,
		Reward:        result.Reward,
	})
}

func (h *ClueHandler) handleProgress(w http.ResponseWriter, r *http.Request, userID string) {
	rows, err := h.gate.Progress(r.Context(), userID)
	if err != nil {
		h.writeGateError(w, err)
		return
	}
	completed, err := h.gate.Completed(r.Context(), userID)
	if err != nil {
		h.writeGateError(w, err)
		return
	}

	cluegatehttp.WriteJSON(w, http.StatusOK, progressResponse{Data: rows, Completed: completed})
}

func (h *ClueHandler) writeGateError(w http.ResponseWriter, err error) {
	if errors.Is(err, gate.ErrUnknownClue) {
		writeError(w, errNotFound("clue not found"))
		return
	}
	h.logger.Error("clue state operation failed", "error", err)
	writeError(w, errUpstream("Unable to load clue state."))
}

// parsePosition accepts "3" or the page-style "clue-3" form.
func parsePosition(raw, prefix string) (int, error) {
	raw = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), prefix)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errBadQuery("must be positive")
	}
	return n, nil
}
