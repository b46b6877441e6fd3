// Package config provides centralized configuration loading and validation
// for the cluegate portal.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Siruyy/cluegate/internal/limiter"
)

// Config holds all validated configuration for the portal server.
type Config struct {
	// ListenAddr is the address the HTTP server binds to (e.g., ":3000").
	ListenAddr string

	// TrustProxy keys the login limiter by the first X-Forwarded-For hop.
	TrustProxy bool

	// AdminAPIToken guards /api/admin, /api/stats and the solve stream.
	// Empty disables those endpoints.
	AdminAPIToken string

	// StoreBackend selects the clue progress store: memory, postgres,
	// sqlite or redis.
	StoreBackend string
	DatabaseURL  string
	SQLitePath   string
	RedisAddr    string

	// CatalogFile is an optional YAML clue catalog. Empty uses the built-in
	// month-one catalog.
	CatalogFile string

	// IdentityBackend is static or gotrue.
	IdentityBackend    string
	IdentityURL        string
	IdentityAnonKey    string
	IdentityServiceKey string
	StaticUsersFile    string

	// SiteURL is the public origin used for password recovery redirects.
	SiteURL string

	// ResetWebhookURL receives reset-email payloads. Empty discards them.
	ResetWebhookURL    string
	ResetWebhookSecret string

	Limits limiter.PoliciesConfig

	// AnalyticsEnabled persists portal events to DATABASE_URL.
	AnalyticsEnabled bool

	// LogLevel controls the minimum log level (debug, info, warn, error).
	LogLevel string
}

// Load reads configuration from environment variables, applies defaults,
// and validates all required values.
func Load() (*Config, error) {
	defaults := limiter.DefaultPoliciesConfig()

	cfg := &Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":3000"),
		TrustProxy:         getEnv("TRUST_PROXY", "false") == "true",
		AdminAPIToken:      strings.TrimSpace(getEnv("ADMIN_API_TOKEN", "")),
		StoreBackend:       strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "memory"))),
		DatabaseURL:        strings.TrimSpace(getEnv("DATABASE_URL", "")),
		SQLitePath:         strings.TrimSpace(getEnv("SQLITE_PATH", "cluegate.db")),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		CatalogFile:        strings.TrimSpace(getEnv("CATALOG_FILE", "")),
		IdentityBackend:    strings.ToLower(strings.TrimSpace(getEnv("IDENTITY_BACKEND", "static"))),
		IdentityURL:        strings.TrimSpace(getEnv("IDENTITY_URL", "")),
		IdentityAnonKey:    strings.TrimSpace(getEnv("IDENTITY_ANON_KEY", "")),
		IdentityServiceKey: strings.TrimSpace(getEnv("IDENTITY_SERVICE_KEY", "")),
		StaticUsersFile:    strings.TrimSpace(getEnv("STATIC_USERS_FILE", "")),
		SiteURL:            strings.TrimRight(strings.TrimSpace(getEnv("SITE_URL", "http://localhost:3000")), "/"),
		ResetWebhookURL:    strings.TrimSpace(getEnv("RESET_WEBHOOK_URL", "")),
		ResetWebhookSecret: getEnv("RESET_WEBHOOK_SECRET", ""),
		AnalyticsEnabled:   getEnv("ANALYTICS_ENABLED", "false") == "true",
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Limits: limiter.PoliciesConfig{
			Login:   getEnvPolicy("LOGIN", defaults.Login),
			Reset:   getEnvPolicy("RESET", defaults.Reset),
			Webhook: getEnvPolicy("WEBHOOK", defaults.Webhook),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is consistent and safe.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for STORE_BACKEND=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("config: SQLITE_PATH is required for STORE_BACKEND=sqlite")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("config: REDIS_ADDR is required for STORE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("config: STORE_BACKEND must be one of: memory, postgres, sqlite, redis; got %q", c.StoreBackend)
	}

	switch c.IdentityBackend {
	case "static":
		if c.StaticUsersFile == "" {
			return fmt.Errorf("config: STATIC_USERS_FILE is required for IDENTITY_BACKEND=static")
		}
	case "gotrue":
		if err := validateHTTPURL("IDENTITY_URL", c.IdentityURL); err != nil {
			return err
		}
		if c.IdentityAnonKey == "" || c.IdentityServiceKey == "" {
			return fmt.Errorf("config: IDENTITY_ANON_KEY and IDENTITY_SERVICE_KEY are required for IDENTITY_BACKEND=gotrue")
		}
	default:
		return fmt.Errorf("config: IDENTITY_BACKEND must be one of: static, gotrue; got %q", c.IdentityBackend)
	}

	if err := validateHTTPURL("SITE_URL", c.SiteURL); err != nil {
		return err
	}
	if c.ResetWebhookURL != "" {
		if err := validateHTTPURL("RESET_WEBHOOK_URL", c.ResetWebhookURL); err != nil {
			return err
		}
	}

	for name, p := range map[string]limiter.Config{"LOGIN": c.Limits.Login, "RESET": c.Limits.Reset, "WEBHOOK": c.Limits.Webhook} {
		if p.Limit <= 0 {
			return fmt.Errorf("config: %s_RATE_LIMIT must be > 0", name)
		}
		if p.Window <= 0 {
			return fmt.Errorf("config: %s_RATE_WINDOW_SECONDS must be > 0", name)
		}
	}

	if c.AnalyticsEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required when ANALYTICS_ENABLED=true")
	}
	if c.AdminAPIToken == "change-me" {
		return fmt.Errorf("config: ADMIN_API_TOKEN must be changed from default value")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("config: LOG_LEVEL must be one of: debug, info, warn, error; got %q", c.LogLevel)
	}

	return nil
}

// SlogLevel maps LogLevel to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func validateHTTPURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("config: %s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: invalid %s %q: %w", name, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: %s scheme must be http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("config: %s must include a host", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvPolicy reads <PREFIX>_RATE_LIMIT and <PREFIX>_RATE_WINDOW_SECONDS.
func getEnvPolicy(prefix string, fallback limiter.Config) limiter.Config {
	return limiter.Config{
		Limit:  getEnvInt(prefix+"_RATE_LIMIT", fallback.Limit),
		Window: time.Duration(getEnvInt(prefix+"_RATE_WINDOW_SECONDS", int(fallback.Window/time.Second))) * time.Second,
	}
}
