package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Siruyy/cluegate/internal/analytics"
	"github.com/Siruyy/cluegate/internal/api"
	"github.com/Siruyy/cluegate/internal/clue"
	"github.com/Siruyy/cluegate/internal/config"
	"github.com/Siruyy/cluegate/internal/gate"
	cluegatehttp "github.com/Siruyy/cluegate/internal/httputil"
	"github.com/Siruyy/cluegate/internal/identity"
	"github.com/Siruyy/cluegate/internal/limiter"
	"github.com/Siruyy/cluegate/internal/metrics"
	"github.com/Siruyy/cluegate/internal/notify"
	"github.com/Siruyy/cluegate/internal/storage"
)

// app owns every long-lived component of the server.
type app struct {
	store       storage.ClueStateStore
	gate        *gate.Gate
	metrics     *metrics.Metrics
	broker      *api.SolveStreamBroker
	events      *analytics.Logger
	analyticsDB *sql.DB
	handler     http.Handler
	logger      *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		metrics: metrics.New(prometheus.NewRegistry()),
		broker:  api.NewSolveStreamBroker(64),
		logger:  logger,
	}

	redisCfg := storage.DefaultRedisConfig()
	redisCfg.Addr = cfg.RedisAddr

	store, err := storage.Open(ctx, storage.OpenConfig{
		Backend:     cfg.StoreBackend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Redis:       redisCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", cfg.StoreBackend, err)
	}
	a.store = store

	fail := func(err error) (*app, error) {
		_ = a.Close(context.Background())
		return nil, err
	}

	catalog := clue.Default()
	if cfg.CatalogFile != "" {
		if catalog, err = clue.LoadFile(cfg.CatalogFile); err != nil {
			return fail(err)
		}
	}

	provider, err := newIdentityProvider(cfg)
	if err != nil {
		return fail(err)
	}

	var emails api.EmailTrigger = notify.Discard{}
	if cfg.ResetWebhookURL != "" {
		hook, err := notify.NewWebhook(cfg.ResetWebhookURL, cfg.ResetWebhookSecret, nil)
		if err != nil {
			return fail(err)
		}
		emails = hook
	} else {
		logger.Warn("RESET_WEBHOOK_URL not set; reset emails will be discarded")
	}

	var stats api.StatsProvider
	if cfg.AnalyticsEnabled {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("failed to open analytics database: %w", err))
		}
		a.analyticsDB = db

		if a.events, err = analytics.New(analytics.Config{DB: db}); err != nil {
			return fail(err)
		}
		qs, err := analytics.NewQueryService(db)
		if err != nil {
			return fail(err)
		}
		stats = qs
	}

	a.gate, err = gate.New(store, catalog, gate.WithEventSink(a.onGateEvent))
	if err != nil {
		return fail(err)
	}

	limits, err := limiter.NewPolicies(cfg.Limits)
	if err != nil {
		return fail(err)
	}

	authHandler, err := api.NewAuthHandler(limits, provider, emails, cfg.SiteURL,
		api.WithTrustProxy(cfg.TrustProxy),
		api.WithDecisionSink(a.onDecision),
		api.WithLogger(logger),
	)
	if err != nil {
		return fail(err)
	}
	clueHandler, err := api.NewClueHandler(a.gate, provider, logger)
	if err != nil {
		return fail(err)
	}
	adminHandler, err := api.NewAdminHandler(a.gate, logger)
	if err != nil {
		return fail(err)
	}

	a.handler = a.routes(cfg.AdminAPIToken, authHandler, clueHandler, adminHandler, api.NewStatsHandler(stats))
	return a, nil
}

func (a *app) routes(adminToken string, auth, clues, admin, stats http.Handler) http.Handler {
	m := a.metrics
	mux := http.NewServeMux()

	mux.HandleFunc("/health", healthHandler(a.store))
	mux.HandleFunc("/", rootHandler)
	mux.Handle("/metrics", m.Handler())

	for _, path := range []string{"/login", "/password-reset-request"} {
		mux.Handle(path, m.Middleware(path, auth))
	}
	for _, path := range []string{"/evaluate-clue", "/submit-answer", "/progress"} {
		mux.Handle(path, m.Middleware(path, clues))
	}

	mux.Handle("/api/admin/", m.Middleware("/api/admin", api.RequireAdminToken(adminToken, admin)))
	mux.Handle("/api/stats/", m.Middleware("/api/stats", api.RequireAdminToken(adminToken, stats)))
	mux.Handle("/api/stream/solves", api.RequireAdminToken(adminToken, api.NewSolveStreamHandler(a.broker)))

	return cluegatehttp.RequestLogger(a.logger, mux)
}

func (a *app) onGateEvent(e gate.Event) {
	a.metrics.ObserveGateEvent(e)
	a.broker.PublishGateEvent(e)
	if a.events != nil {
		a.events.Log(analytics.FromGate(e))
	}
}

func (a *app) onDecision(policy limiter.Policy, key string, d limiter.Decision) {
	a.metrics.ObserveDecision(policy, d)
	if !d.Allowed {
		a.logger.Warn("rate limit exceeded", "policy", policy, "retry_after_seconds", d.RetryAfterSeconds())
	}
	if a.events != nil {
		a.events.Log(analytics.FromDecision(time.Now(), policy, key, d))
	}
}

// Close flushes analytics and releases storage. It is safe on a partially
// built app.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.events != nil {
		if err := a.events.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		logged, dropped := a.events.Stats()
		a.logger.Info("analytics logger closed", "logged", logged, "dropped", dropped)
	}
	if a.analyticsDB != nil {
		if err := a.analyticsDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("analytics database close: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newIdentityProvider(cfg *config.Config) (identity.Provider, error) {
	switch cfg.IdentityBackend {
	case "gotrue":
		return identity.NewGoTrue(identity.GoTrueConfig{
			BaseURL:    cfg.IdentityURL,
			AnonKey:    cfg.IdentityAnonKey,
			ServiceKey: cfg.IdentityServiceKey,
		})
	case "static":
		return identity.LoadStaticFile(cfg.StaticUsersFile)
	default:
		return nil, fmt.Errorf("unknown identity backend %q", cfg.IdentityBackend)
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Error   string `json:"error,omitempty"`
}

func healthHandler(store storage.ClueStateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			slog.Warn("health check failed", "error", err)
			cluegatehttp.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Service: "cluegate", Error: "store unavailable"})
			return
		}
		cluegatehttp.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Service: "cluegate"})
	}
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("cluegate portal API\n")); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
