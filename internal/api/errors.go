package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	cluegatehttp "github.com/Siruyy/cluegate/internal/httputil"
	"github.com/Siruyy/cluegate/internal/limiter"
)

// Reason classifies an error response. It is rendered as the "reason" field.
type Reason string

const (
	ReasonValidation         Reason = "validation_error"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonAuthMismatch       Reason = "auth_mismatch"
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonUpstream           Reason = "upstream_failure"
	ReasonUnauthenticated    Reason = "unauthenticated"
	ReasonLocked             Reason = "locked"
	ReasonNotFound           Reason = "not_found"
	ReasonMethodNotAllowed   Reason = "method_not_allowed"
	ReasonForbidden          Reason = "forbidden"
	ReasonUnavailable        Reason = "unavailable"
)

// Error is an HTTP-facing failure with a stable reason and a message that is
// safe to show to the caller.
type Error struct {
	Status     int
	Reason     Reason
	Message    string
	RetryAfter int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

type errorBody struct {
	Error             string `json:"error"`
	Reason            Reason `json:"reason"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

func writeError(w http.ResponseWriter, e *Error) {
	if e.Status == http.StatusTooManyRequests && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	cluegatehttp.WriteJSON(w, e.Status, errorBody{
		Error:             e.Message,
		Reason:            e.Reason,
		RetryAfterSeconds: e.RetryAfter,
	})
}

func errValidation(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Reason: ReasonValidation, Message: message}
}

func errRateLimited(message string, d limiter.Decision) *Error {
	return &Error{
		Status:     http.StatusTooManyRequests,
		Reason:     ReasonRateLimited,
		Message:    message,
		RetryAfter: d.RetryAfterSeconds(),
	}
}

func errAuthMismatch() *Error {
	return &Error{Status: http.StatusBadRequest, Reason: ReasonAuthMismatch, Message: "Agent ID and email do not match our records."}
}

func errInvalidCredentials() *Error {
	return &Error{Status: http.StatusUnauthorized, Reason: ReasonInvalidCredentials, Message: "Invalid login credentials."}
}

func errUpstream(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Reason: ReasonUpstream, Message: message}
}

func errUnauthenticated() *Error {
	return &Error{Status: http.StatusUnauthorized, Reason: ReasonUnauthenticated, Message: "authentication required"}
}

func errForbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Reason: ReasonForbidden, Message: message}
}

func errUnavailable(message string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Reason: ReasonUnavailable, Message: message}
}

func errNotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Reason: ReasonNotFound, Message: message}
}

func errMethodNotAllowed(w http.ResponseWriter, allow string) *Error {
	w.Header().Set("Allow", allow)
	return &Error{Status: http.StatusMethodNotAllowed, Reason: ReasonMethodNotAllowed, Message: "method not allowed"}
}

// minutesUntil rounds d up to whole minutes, never below one.
func minutesUntil(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
