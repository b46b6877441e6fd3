package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds every provider call.
const DefaultHTTPTimeout = 10 * time.Second

// GoTrueConfig configures a GoTrue-compatible provider (e.g. Supabase Auth).
type GoTrueConfig struct {
	// BaseURL is the project URL; "/auth/v1" and "/rest/v1" are appended.
	BaseURL string
	// AnonKey authorizes public endpoints (password grant, user lookup).
	AnonKey string
	// ServiceKey authorizes admin endpoints and the verification RPC.
	ServiceKey string
	// VerifyRPC is the database function that checks an agent/email pair.
	VerifyRPC string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// GoTrue talks to a GoTrue auth server over HTTP.
type GoTrue struct {
	base       string
	anonKey    string
	serviceKey string
	verifyRPC  string
	client     *http.Client
}

// NewGoTrue validates cfg and returns a provider.
func NewGoTrue(cfg GoTrueConfig) (*GoTrue, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("identity: gotrue base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("identity: invalid gotrue base URL: %w", err)
	}
	if cfg.AnonKey == "" || cfg.ServiceKey == "" {
		return nil, fmt.Errorf("identity: gotrue anon and service keys are required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	rpc := cfg.VerifyRPC
	if rpc == "" {
		rpc = "verify_agent_for_reset"
	}

	return &GoTrue{
		base:       base,
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		verifyRPC:  rpc,
		client:     client,
	}, nil
}

// CurrentUserID resolves the bearer token via GET /auth/v1/user.
func (g *GoTrue) CurrentUserID(r *http.Request) (string, bool, error) {
	tok := BearerToken(r)
	if tok == "" {
		return "", false, nil
	}

	var user struct {
		ID string `json:"id"`
	}
	status, err := g.do(r.Context(), http.MethodGet, "/auth/v1/user", g.anonKey, tok, nil, &user)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if user.ID == "" {
		return "", false, nil
	}
	return user.ID, true, nil
}

// Authenticate performs a password grant.
func (g *GoTrue) Authenticate(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	status, err := g.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", g.anonKey, g.anonKey, body, nil)
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return ErrInvalidCredentials
	}
	return err
}

// VerifyAgentEmailPair calls the verification RPC with the service key.
func (g *GoTrue) VerifyAgentEmailPair(ctx context.Context, agentID, email string) (bool, error) {
	body := map[string]string{"p_agent_id": agentID, "p_email": email}

	var ok bool
	if _, err := g.do(ctx, http.MethodPost, "/rest/v1/rpc/"+url.PathEscape(g.verifyRPC), g.serviceKey, g.serviceKey, body, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// SendPasswordRecoveryLink generates a recovery link via the admin API.
func (g *GoTrue) SendPasswordRecoveryLink(ctx context.Context, email, redirectTo string) (ActionLink, error) {
	body := map[string]string{"type": "recovery", "email": email, "redirect_to": redirectTo}

	var resp struct {
		ActionLink string `json:"action_link"`
		Properties struct {
			ActionLink string `json:"action_link"`
		} `json:"properties"`
	}
	if _, err := g.do(ctx, http.MethodPost, "/auth/v1/admin/generate_link", g.serviceKey, g.serviceKey, body, &resp); err != nil {
		return ActionLink{}, err
	}

	link := resp.ActionLink
	if link == "" {
		link = resp.Properties.ActionLink
	}
	if link == "" {
		return ActionLink{}, fmt.Errorf("%w: generate_link returned no action link", ErrUpstream)
	}
	return ActionLink{Email: email, URL: link}, nil
}

// do sends a JSON request and decodes a 2xx JSON response into out. The
// returned status is 0 when no response was received.
func (g *GoTrue) do(ctx context.Context, method, path, apiKey, bearer string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("identity: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.base+path, body)
	if err != nil {
		return 0, fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %v", ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, fmt.Errorf("%w: %s %s returned %d", ErrUpstream, method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode %s response: %v", ErrUpstream, path, err)
		}
	}
	return resp.StatusCode, nil
}
