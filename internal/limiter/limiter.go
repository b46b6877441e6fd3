// Package limiter provides in-process fixed-window rate limiting.
package limiter

import (
	"fmt"
	"sync"
	"time"
)

// SweepInterval is the minimum time between sweeps of expired entries.
const SweepInterval = 60 * time.Second

// Config controls limiter behavior.
type Config struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// RetryAfterSeconds rounds ResetIn up to whole seconds, never below one
// for a denied decision.
func (d Decision) RetryAfterSeconds() int {
	secs := int((d.ResetIn + time.Second - 1) / time.Second)
	if secs < 1 && !d.Allowed {
		return 1
	}
	return secs
}

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window counter keyed by an arbitrary string.
// All methods are safe for concurrent use.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	entries   map[string]*entry
	lastSweep time.Time
}

// Option configures optional Limiter behavior.
type Option func(*Limiter)

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter with the provided configuration.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("limiter: limit must be greater than 0")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("limiter: window must be greater than 0")
	}

	l := &Limiter{
		limit:   cfg.Limit,
		window:  cfg.Window,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()

	return l, nil
}

// Check records an attempt for key and reports whether it is allowed.
// A denied attempt does not extend the current window.
func (l *Limiter) Check(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > SweepInterval {
		l.sweep(now)
		l.lastSweep = now
	}

	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(l.window)}
		return Decision{Allowed: true, Remaining: l.limit - 1, ResetIn: l.window}
	}

	if e.count >= l.limit {
		return Decision{Allowed: false, Remaining: 0, ResetIn: e.resetAt.Sub(now)}
	}

	e.count++
	return Decision{Allowed: true, Remaining: l.limit - e.count, ResetIn: e.resetAt.Sub(now)}
}

// Limit returns the configured maximum attempts per window.
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Len returns the number of tracked keys, expired or not.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// sweep drops entries whose window has passed. Caller holds l.mu.
func (l *Limiter) sweep(now time.Time) {
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
		}
	}
}
