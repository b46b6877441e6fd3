// Package identity adapts external identity providers to the operations
// the portal consumes: resolving the current user, password sign-in, agent
// and email verification, and recovery link generation.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrInvalidCredentials is returned by Authenticate for a rejected
	// email/password pair.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrUpstream wraps unexpected provider responses.
	ErrUpstream = errors.New("identity: upstream failure")
)

// ActionLink is a single-use link produced by the provider.
type ActionLink struct {
	Email string
	URL   string
}

// Provider is the identity collaborator used by the HTTP layer.
type Provider interface {
	// CurrentUserID resolves the authenticated user for r. The bool is
	// false when the request carries no valid credentials.
	CurrentUserID(r *http.Request) (string, bool, error)

	// Authenticate checks an email/password pair.
	Authenticate(ctx context.Context, email, password string) error

	// VerifyAgentEmailPair reports whether agentID is registered with email.
	VerifyAgentEmailPair(ctx context.Context, agentID, email string) (bool, error)

	// SendPasswordRecoveryLink issues a recovery link for email that lands
	// on redirectTo.
	SendPasswordRecoveryLink(ctx context.Context, email, redirectTo string) (ActionLink, error)
}

// AgentID derives the agent id from a login identifier: the part before
// '@', trimmed and upper-cased.
func AgentID(loginIdentifier string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(loginIdentifier), "@")
	return strings.ToUpper(strings.TrimSpace(local))
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(raw[7:])
}
