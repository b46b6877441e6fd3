package analytics

import (
	"time"

	"github.com/Siruyy/cluegate/internal/gate"
	"github.com/Siruyy/cluegate/internal/limiter"
)

// FromGate converts a gate event into a portal event.
func FromGate(e gate.Event) Event {
	ok := e.Correct
	if e.Kind == gate.EventEvaluated {
		ok = e.State != gate.StateLocked
	}
	return Event{
		Timestamp: e.Timestamp,
		Kind:      KindCluePrefix + string(e.Kind),
		Subject:   e.UserID,
		ClueKey:   e.ClueKey,
		OK:        ok,
	}
}

// FromDecision converts a rate-limit decision into a portal event.
func FromDecision(at time.Time, policy limiter.Policy, key string, d limiter.Decision) Event {
	return Event{
		Timestamp: at,
		Kind:      LimitKind(string(policy)),
		Subject:   key,
		OK:        d.Allowed,
	}
}
