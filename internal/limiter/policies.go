package limiter

import (
	"fmt"
	"time"
)

// Policy names the endpoint class a limiter instance protects.
type Policy string

const (
	// PolicyLogin limits sign-in attempts per client IP.
	PolicyLogin Policy = "login"
	// PolicyReset limits password-reset requests per destination email.
	PolicyReset Policy = "reset"
	// PolicyWebhook limits reset-email webhook triggers per agent id.
	PolicyWebhook Policy = "webhook"
)

// Default policy parameters.
var (
	DefaultLogin   = Config{Limit: 5, Window: 15 * time.Minute}
	DefaultReset   = Config{Limit: 3, Window: 60 * time.Minute}
	DefaultWebhook = Config{Limit: 10, Window: time.Minute}
)

// PoliciesConfig holds the parameters for each named policy.
type PoliciesConfig struct {
	Login   Config
	Reset   Config
	Webhook Config
}

// DefaultPoliciesConfig returns the stock login/reset/webhook parameters.
func DefaultPoliciesConfig() PoliciesConfig {
	return PoliciesConfig{
		Login:   DefaultLogin,
		Reset:   DefaultReset,
		Webhook: DefaultWebhook,
	}
}

// Policies groups one independent Limiter per named policy.
type Policies struct {
	Login   *Limiter
	Reset   *Limiter
	Webhook *Limiter
}

// NewPolicies builds an independent limiter for each policy. Options apply
// to all three.
func NewPolicies(cfg PoliciesConfig, opts ...Option) (*Policies, error) {
	login, err := New(cfg.Login, opts...)
	if err != nil {
		return nil, fmt.Errorf("limiter: %s policy: %w", PolicyLogin, err)
	}
	reset, err := New(cfg.Reset, opts...)
	if err != nil {
		return nil, fmt.Errorf("limiter: %s policy: %w", PolicyReset, err)
	}
	webhook, err := New(cfg.Webhook, opts...)
	if err != nil {
		return nil, fmt.Errorf("limiter: %s policy: %w", PolicyWebhook, err)
	}

	return &Policies{Login: login, Reset: reset, Webhook: webhook}, nil
}
