package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Siruyy/cluegate/internal/gate"
)

// SolveEvent is a live progression event streamed to admin dashboards.
type SolveEvent struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	ClueKey   string    `json:"clue_key"`
	Kind      string    `json:"kind"`
	Final     bool      `json:"final,omitempty"`
}

// SolveEventFromGate converts solve and reset gate events. Other kinds are
// not streamed.
func SolveEventFromGate(e gate.Event) (SolveEvent, bool) {
	if e.Kind != gate.EventSolved && e.Kind != gate.EventReset {
		return SolveEvent{}, false
	}
	return SolveEvent{
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		ClueKey:   e.ClueKey,
		Kind:      string(e.Kind),
		Final:     e.Final,
	}, true
}

// SolveStreamBroker fans out solve events to active subscribers.
type SolveStreamBroker struct {
	mu          sync.RWMutex
	subscribers map[int]chan SolveEvent
	nextID      int
	bufferSize  int
}

// NewSolveStreamBroker creates a new in-memory event broker.
func NewSolveStreamBroker(bufferSize int) *SolveStreamBroker {
	if bufferSize <= 0 {
		bufferSize = 64
	}

	return &SolveStreamBroker{
		subscribers: make(map[int]chan SolveEvent),
		bufferSize:  bufferSize,
	}
}

// Publish broadcasts an event to all subscribers without blocking.
func (b *SolveStreamBroker) Publish(event SolveEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// subscriber is behind; drop
		}
	}
}

// PublishGateEvent publishes e when it is a streamed kind.
func (b *SolveStreamBroker) PublishGateEvent(e gate.Event) {
	if event, ok := SolveEventFromGate(e); ok {
		b.Publish(event)
	}
}

// Subscribers returns the number of active subscribers.
func (b *SolveStreamBroker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Subscribe registers a subscriber channel and returns an unsubscribe function.
func (b *SolveStreamBroker) Subscribe() (<-chan SolveEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan SolveEvent, b.bufferSize)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}

	return ch, unsubscribe
}

// SolveStreamHandler serves solve events over WebSocket.
type SolveStreamHandler struct {
	broker   *SolveStreamBroker
	upgrader websocket.Upgrader
}

// NewSolveStreamHandler creates a WebSocket stream handler.
func NewSolveStreamHandler(broker *SolveStreamBroker) *SolveStreamHandler {
	if broker == nil {
		broker = NewSolveStreamBroker(64)
	}

	return &SolveStreamHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP upgrades requests to WebSocket and streams solve events.
func (h *SolveStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, errMethodNotAllowed(w, http.MethodGet))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := h.broker.Subscribe()
	defer unsubscribe()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if writeErr := conn.WriteJSON(event); writeErr != nil {
				return
			}
		case <-pingTicker.C:
			if pingErr := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); pingErr != nil {
				return
			}
		case <-readDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
