// Package gate implements the sequential clue unlock state machine.
//
// A clue is visible when it is the first clue of its month or when the
// immediately preceding clue in the same month is solved. Visibility is
// computed on every evaluation; only the solved flag is stored.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Siruyy/cluegate/internal/answer"
	"github.com/Siruyy/cluegate/internal/clue"
	"github.com/Siruyy/cluegate/internal/storage"
)

// State is the per-user state of one clue.
type State string

const (
	StateLocked       State = "LOCKED"
	StateOpenUnsolved State = "OPEN_UNSOLVED"
	StateOpenSolved   State = "OPEN_SOLVED"
)

// ErrUnknownClue is returned for (month, index) pairs outside the catalog.
var ErrUnknownClue = errors.New("gate: unknown clue")

// EventKind classifies gate events.
type EventKind string

const (
	EventEvaluated EventKind = "evaluated"
	EventSubmitted EventKind = "submitted"
	EventSolved    EventKind = "solved"
	EventReset     EventKind = "reset"
)

// Event describes one gate operation for observers.
type Event struct {
	Timestamp time.Time
	UserID    string
	ClueKey   string
	Kind      EventKind
	State     State
	Correct   bool
	Final     bool
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	Key   clue.Key
	State State
	Final bool
	// Reward is set only when State is StateOpenSolved.
	Reward *clue.Reward
}

// SubmitResult is the result of Submit.
type SubmitResult struct {
	Correct bool
	// AlreadySolved is true when the clue was solved before this call.
	AlreadySolved bool
	// Final is true when the submitted clue completes the sequence.
	Final  bool
	Reward *clue.Reward
}

// ClueProgress is one row of a user's progress listing.
type ClueProgress struct {
	Key      string     `json:"clueKey"`
	Month    int        `json:"month"`
	Index    int        `json:"clue"`
	State    State      `json:"state"`
	Final    bool       `json:"final"`
	SolvedAt *time.Time `json:"solvedAt,omitempty"`
}

// Gate evaluates and advances clue state. It never writes storage except
// through the ClueStateStore interface.
type Gate struct {
	store     storage.ClueStateStore
	catalog   *clue.Catalog
	now       func() time.Time
	eventSink func(Event)
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces the time source used for solvedAt.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithEventSink configures a callback invoked after each operation.
func WithEventSink(sink func(Event)) Option {
	return func(g *Gate) {
		g.eventSink = sink
	}
}

// New creates a Gate over store and catalog.
func New(store storage.ClueStateStore, catalog *clue.Catalog, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("gate: store is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("gate: catalog is required")
	}

	g := &Gate{
		store:   store,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Catalog returns the clue catalog the gate serves.
func (g *Gate) Catalog() *clue.Catalog {
	return g.catalog
}

// Evaluate computes the state of clue (month, index) for userID. A locked
// clue is reported without reading or creating its own record; an open
// clue's record is created on first visit.
func (g *Gate) Evaluate(ctx context.Context, userID string, month, index int) (Evaluation, error) {
	def, err := g.lookup(month, index)
	if err != nil {
		return Evaluation{}, err
	}
	key := def.Key()
	eval := Evaluation{Key: key, Final: def.Final}

	if index > 1 {
		unlocked, err := g.store.PredecessorUnlocked(ctx, userID, month, index)
		if err != nil {
			return Evaluation{}, fmt.Errorf("gate: predecessor check for %s: %w", key, err)
		}
		if !unlocked {
			eval.State = StateLocked
			g.emit(Event{UserID: userID, ClueKey: key.String(), Kind: EventEvaluated, State: StateLocked})
			return eval, nil
		}
	}

	rec, err := g.store.EnsureRecord(ctx, userID, key.String())
	if err != nil {
		return Evaluation{}, fmt.Errorf("gate: ensure record for %s: %w", key, err)
	}

	eval.State = StateOpenUnsolved
	if rec.Solved {
		eval.State = StateOpenSolved
		reward := def.Reward
		eval.Reward = &reward
	}

	g.emit(Event{UserID: userID, ClueKey: key.String(), Kind: EventEvaluated, State: eval.State, Final: def.Final})
	return eval, nil
}

// Submit checks rawAnswer against clue (month, index) and marks the clue
// solved on a match. Callers must reject submissions for locked clues
// (see Evaluate); Submit does not re-check visibility. Repeated correct
// submissions are no-ops that keep the original solvedAt; only the
// submission that flips the record reports a first solve.
func (g *Gate) Submit(ctx context.Context, userID string, month, index int, rawAnswer string) (SubmitResult, error) {
	def, err := g.lookup(month, index)
	if err != nil {
		return SubmitResult{}, err
	}
	key := def.Key().String()

	if !answer.IsMatch(rawAnswer, def.Answers) {
		g.emit(Event{UserID: userID, ClueKey: key, Kind: EventSubmitted, State: StateOpenUnsolved})
		return SubmitResult{Correct: false}, nil
	}

	changed, err := g.store.MarkSolved(ctx, userID, key, g.now())
	if err != nil {
		return SubmitResult{}, fmt.Errorf("gate: mark %s solved: %w", key, err)
	}

	reward := def.Reward
	result := SubmitResult{Correct: true, AlreadySolved: !changed, Final: def.Final, Reward: &reward}

	g.emit(Event{UserID: userID, ClueKey: key, Kind: EventSubmitted, State: StateOpenSolved, Correct: true, Final: def.Final})
	if changed {
		g.emit(Event{UserID: userID, ClueKey: key, Kind: EventSolved, State: StateOpenSolved, Correct: true, Final: def.Final})
	}
	return result, nil
}

// Reset returns clue (month, index) to unsolved for userID. Later clues keep
// their own solved flags but become locked again until this clue is solved.
func (g *Gate) Reset(ctx context.Context, userID string, month, index int) error {
	def, err := g.lookup(month, index)
	if err != nil {
		return err
	}
	key := def.Key().String()

	if err := g.store.Reset(ctx, userID, key); err != nil {
		return fmt.Errorf("gate: reset %s: %w", key, err)
	}

	g.emit(Event{UserID: userID, ClueKey: key, Kind: EventReset, State: StateOpenUnsolved})
	return nil
}

// Progress returns the computed state of every catalog clue for userID
// without creating records.
func (g *Gate) Progress(ctx context.Context, userID string) ([]ClueProgress, error) {
	records, err := g.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("gate: list progress: %w", err)
	}

	byKey := make(map[string]storage.Record, len(records))
	for _, rec := range records {
		byKey[rec.ClueKey] = rec
	}

	defs := g.catalog.All()
	out := make([]ClueProgress, 0, len(defs))
	for _, def := range defs {
		key := def.Key()
		row := ClueProgress{
			Key:   key.String(),
			Month: key.Month,
			Index: key.Index,
			Final: def.Final,
			State: StateOpenUnsolved,
		}

		if prev, ok := key.Previous(); ok && !byKey[prev.String()].NextPageUnlocked() {
			row.State = StateLocked
		} else if rec, ok := byKey[key.String()]; ok && rec.Solved {
			row.State = StateOpenSolved
			row.SolvedAt = rec.SolvedAt
		}
		out = append(out, row)
	}
	return out, nil
}

// Completed reports whether userID has solved the final clue.
func (g *Gate) Completed(ctx context.Context, userID string) (bool, error) {
	last := g.catalog.Last().Key()
	rec, found, err := g.store.Get(ctx, userID, last.String())
	if err != nil {
		return false, fmt.Errorf("gate: read %s: %w", last, err)
	}
	return found && rec.Solved, nil
}

func (g *Gate) lookup(month, index int) (clue.Definition, error) {
	def, err := g.catalog.Lookup(clue.Key{Month: month, Index: index})
	if errors.Is(err, clue.ErrNotFound) {
		return clue.Definition{}, fmt.Errorf("%w: M%dC%d", ErrUnknownClue, month, index)
	}
	return def, err
}

func (g *Gate) emit(e Event) {
	if g.eventSink == nil {
		return
	}
	e.Timestamp = g.now()
	g.eventSink(e)
}
