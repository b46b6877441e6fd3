// Package analytics provides asynchronous logging and querying of portal
// events: rate-limit decisions and clue transitions.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event kinds. Rate-limit kinds share the "limit." prefix and clue kinds
// the "clue." prefix.
const (
	KindLimitPrefix = "limit."
	KindCluePrefix  = "clue."

	KindClueEvaluated = "clue.evaluated"
	KindClueSubmitted = "clue.submitted"
	KindClueSolved    = "clue.solved"
	KindClueReset     = "clue.reset"
)

// LimitKind returns the event kind for a rate-limit policy name.
func LimitKind(policy string) string {
	return KindLimitPrefix + policy
}

// Event represents a single portal event to be logged.
type Event struct {
	Timestamp time.Time
	Kind      string
	// Subject is the limiter key for limit events and the user id for clue events.
	Subject string
	ClueKey string
	// OK is the limiter decision or the correctness of a submission.
	OK bool
}

// Logger is an asynchronous event logger that batches writes to reduce
// database load and keep the request path free of I/O.
type Logger struct {
	db     *sql.DB
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	batchSize     int
	flushInterval time.Duration

	mu            sync.RWMutex
	eventsLogged  int64
	eventsDropped int64
	closeOnce     sync.Once
}

// Config holds configuration for the analytics logger.
type Config struct {
	DB            *sql.DB
	BufferSize    int           // Size of event channel buffer (default: 100)
	BatchSize     int           // Number of events to batch before writing (default: 100)
	FlushInterval time.Duration // Maximum time before flushing (default: 5s)
}

// New creates a new analytics logger and starts the background worker.
func New(cfg Config) (*Logger, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("analytics: database connection is required")
	}

	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	logger := &Logger{
		db:            cfg.DB,
		events:        make(chan Event, cfg.BufferSize),
		done:          make(chan struct{}),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cfg.DB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("analytics: database not available: %w", err)
	}

	logger.wg.Add(1)
	go logger.worker()

	return logger, nil
}

// Log queues an event for asynchronous logging. It never blocks and drops
// the event if the buffer is full.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case l.events <- event:
	default:
		l.mu.Lock()
		l.eventsDropped++
		l.mu.Unlock()
		slog.Warn("analytics: event buffer full, dropping event", "kind", event.Kind)
	}
}

// Close gracefully shuts down the logger, flushing all pending events.
func (l *Logger) Close(ctx context.Context) error {
	l.closeOnce.Do(func() { close(l.done) })

	doneCh := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("analytics: shutdown timeout exceeded")
	}
}

// Stats returns current logger statistics.
func (l *Logger) Stats() (logged, dropped int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.eventsLogged, l.eventsDropped
}

func (l *Logger) worker() {
	defer l.wg.Done()

	batch := make([]Event, 0, l.batchSize)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-l.events:
			batch = append(batch, event)
			if len(batch) >= l.batchSize {
				l.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = batch[:0]
			}

		case <-l.done:
			l.drainAndFlush(batch)
			return
		}
	}
}

// flush writes a batch of events in one transaction.
func (l *Logger) flush(events []Event) {
	if len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("analytics: failed to begin transaction", "error", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO portal_events (timestamp, kind, subject, clue_key, ok)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		slog.Error("analytics: failed to prepare statement", "error", err)
		return
	}
	defer stmt.Close()

	for _, event := range events {
		if _, err := stmt.ExecContext(ctx,
			event.Timestamp,
			event.Kind,
			event.Subject,
			event.ClueKey,
			event.OK,
		); err != nil {
			slog.Warn("analytics: failed to insert event", "kind", event.Kind, "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("analytics: failed to commit transaction", "error", err)
		return
	}

	l.mu.Lock()
	l.eventsLogged += int64(len(events))
	l.mu.Unlock()

	slog.Debug("analytics: flushed events", "count", len(events))
}

func (l *Logger) drainAndFlush(batch []Event) {
	for {
		select {
		case event := <-l.events:
			batch = append(batch, event)
			if len(batch) >= l.batchSize {
				l.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				l.flush(batch)
			}
			return
		}
	}
}
