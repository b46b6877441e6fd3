package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	cluegatehttp "github.com/Siruyy/cluegate/internal/httputil"
	"github.com/Siruyy/cluegate/internal/identity"
	"github.com/Siruyy/cluegate/internal/limiter"
	"github.com/Siruyy/cluegate/internal/notify"
)

// EmailTrigger dispatches the password-reset email through an external
// service.
type EmailTrigger interface {
	TriggerEmail(ctx context.Context, payload notify.ResetEmail) error
}

// DecisionSink observes every limiter decision the handlers make.
type DecisionSink func(policy limiter.Policy, key string, d limiter.Decision)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequest struct {
	LoginIdentifier string `json:"loginIdentifier"`
	// LoginEmail is accepted as an alias for LoginIdentifier.
	LoginEmail  string `json:"loginEmail"`
	ActualEmail string `json:"actualEmail"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// AuthHandler serves the rate-limited sign-in and password-reset endpoints.
type AuthHandler struct {
	limits     *limiter.Policies
	identity   identity.Provider
	emails     EmailTrigger
	siteURL    string
	trustProxy bool
	onDecision DecisionSink
	logger     *slog.Logger
}

// AuthOption configures an AuthHandler.
type AuthOption func(*AuthHandler)

// WithTrustProxy keys the login limiter by the first X-Forwarded-For hop.
func WithTrustProxy(enabled bool) AuthOption {
	return func(h *AuthHandler) {
		h.trustProxy = enabled
	}
}

// WithDecisionSink reports limiter decisions to sink.
func WithDecisionSink(sink DecisionSink) AuthOption {
	return func(h *AuthHandler) {
		h.onDecision = sink
	}
}

// WithLogger sets the logger used for upstream failures.
func WithLogger(logger *slog.Logger) AuthOption {
	return func(h *AuthHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewAuthHandler creates an AuthHandler. Recovery links redirect to
// siteURL + "/reset-password".
func NewAuthHandler(limits *limiter.Policies, provider identity.Provider, emails EmailTrigger, siteURL string, opts ...AuthOption) (*AuthHandler, error) {
	if limits == nil || limits.Login == nil || limits.Reset == nil || limits.Webhook == nil {
		return nil, errors.New("api: limiter policies are required")
	}
	if provider == nil {
		return nil, errors.New("api: identity provider is required")
	}
	if emails == nil {
		emails = notify.Discard{}
	}

	h := &AuthHandler{
		limits:   limits,
		identity: provider,
		emails:   emails,
		siteURL:  strings.TrimRight(strings.TrimSpace(siteURL), "/"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles:
// - POST /login
// - POST /password-reset-request
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, errMethodNotAllowed(w, http.MethodPost))
		return
	}

	switch r.URL.Path {
	case "/login":
		h.handleLogin(w, r)
	case "/password-reset-request":
		h.handleResetRequest(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := cluegatehttp.ClientIP(r, h.trustProxy)
	if d := h.check(w, limiter.PolicyLogin, h.limits.Login, ip); !d.Allowed {
		writeError(w, errRateLimited(
			fmt.Sprintf("Too many login attempts. Try again in %d minutes.", minutesUntil(d.ResetIn)), d))
		return
	}

	var req loginRequest
	if err := cluegatehttp.DecodeJSON(w, r, &req); err != nil {
		writeError(w, errValidation("Email and password are required."))
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, errValidation("Email and password are required."))
		return
	}

	if err := h.identity.Authenticate(r.Context(), email, req.Password); err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, errInvalidCredentials())
			return
		}
		h.logger.Error("login upstream failure", "error", err)
		writeError(w, errUpstream("Sign-in is temporarily unavailable."))
		return
	}

	cluegatehttp.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *AuthHandler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := cluegatehttp.DecodeJSON(w, r, &req); err != nil {
		writeError(w, errValidation("Both emails are required."))
		return
	}

	loginIdentifier := strings.TrimSpace(req.LoginIdentifier)
	if loginIdentifier == "" {
		loginIdentifier = strings.TrimSpace(req.LoginEmail)
	}
	actualEmail := strings.TrimSpace(req.ActualEmail)
	agentID := identity.AgentID(loginIdentifier)
	if agentID == "" || actualEmail == "" || !strings.Contains(actualEmail, "@") {
		writeError(w, errValidation("Both emails are required."))
		return
	}

	if d := h.check(w, limiter.PolicyReset, h.limits.Reset, strings.ToLower(actualEmail)); !d.Allowed {
		writeError(w, errRateLimited(
			fmt.Sprintf("Too many reset requests. Try again in %d minutes.", minutesUntil(d.ResetIn)), d))
		return
	}
	if d := h.check(w, limiter.PolicyWebhook, h.limits.Webhook, agentID); !d.Allowed {
		writeError(w, errRateLimited("Too many reset requests. Please wait a moment.", d))
		return
	}

	ok, err := h.identity.VerifyAgentEmailPair(r.Context(), agentID, actualEmail)
	if err != nil {
		h.logger.Error("agent verification failed", "agent_id", agentID, "error", err)
		writeError(w, errUpstream("Unable to process reset request."))
		return
	}
	if !ok {
		writeError(w, errAuthMismatch())
		return
	}

	link, err := h.identity.SendPasswordRecoveryLink(r.Context(), actualEmail, h.siteURL+"/reset-password")
	if err != nil {
		h.logger.Error("recovery link generation failed", "agent_id", agentID, "error", err)
		writeError(w, errUpstream("Unable to process reset request."))
		return
	}

	payload := notify.ResetEmail{Email: actualEmail, ResetLink: link.URL, AgentID: agentID}
	if err := h.emails.TriggerEmail(r.Context(), payload); err != nil {
		h.logger.Error("reset email dispatch failed", "agent_id", agentID, "error", err)
		writeError(w, errUpstream("Unable to send reset email."))
		return
	}

	cluegatehttp.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

// check consults lim and advertises the decision in X-RateLimit-* headers.
// When several policies apply the last one checked wins.
func (h *AuthHandler) check(w http.ResponseWriter, policy limiter.Policy, lim *limiter.Limiter, key string) limiter.Decision {
	d := lim.Check(key)

	w.Header().Set("X-RateLimit-Policy", string(policy))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(lim.Limit()))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(d.ResetIn).Unix(), 10))

	if h.onDecision != nil {
		h.onDecision(policy, key, d)
	}
	return d
}
