// Package notify dispatches password-reset emails through an outbound webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// SecretHeader carries the optional shared secret.
const SecretHeader = "X-Webhook-Secret"

// ErrDispatch is returned when the webhook rejects or fails a request.
var ErrDispatch = errors.New("notify: dispatch failed")

// ResetEmail is the payload posted to the webhook.
type ResetEmail struct {
	Email     string `json:"email"`
	ResetLink string `json:"resetLink"`
	AgentID   string `json:"agentId"`
}

// Webhook posts ResetEmail payloads as JSON. It does not retry.
type Webhook struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhook validates endpoint and returns a dispatcher. A nil client
// gets a 10 second timeout.
func NewWebhook(endpoint, secret string, client *http.Client) (*Webhook, error) {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("notify: invalid webhook URL %q", endpoint)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: endpoint, secret: secret, client: client}, nil
}

// TriggerEmail sends payload; any non-2xx response is an error.
func (w *Webhook) TriggerEmail(ctx context.Context, payload ResetEmail) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set(SecretHeader, w.secret)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: webhook returned %d", ErrDispatch, resp.StatusCode)
	}
	return nil
}

// Discard is an email dispatcher that accepts and drops every payload.
// It is used when no webhook is configured.
type Discard struct{}

// TriggerEmail implements the dispatcher contract.
func (Discard) TriggerEmail(context.Context, ResetEmail) error { return nil }
