// Package notify delivers trade-state-change notifications to downstream
// consumers (SSE clients, callbacks) through a channel pub/sub hub.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Event signals that trade state changed after a successful terminal order
// or a local parameter mutation.
type Event struct {
	Type   string    `json:"type"` // "trade_update"
	Symbol string    `json:"symbol,omitempty"`
	Kind   string    `json:"kind,omitempty"` // operation kind that completed
	At     time.Time `json:"at"`
}

// Hub fans Events out to subscribers. Broadcast never blocks; slow
// consumers have events dropped.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	log    *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		subs: make(map[int]chan Event),
		log:  log.With("component", "notify"),
	}
}

// Subscribe returns a channel that receives events. bufSize controls the
// channel buffer.
func (h *Hub) Subscribe(bufSize int) (int, <-chan Event) {
	ch := make(chan Event, bufSize)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Broadcast sends an event to all subscribers non-blocking (drop on full).
func (h *Hub) Broadcast(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			// Slow consumer, drop the event.
			h.log.Debug("dropping notification", "subscriber", id, "symbol", e.Symbol)
		}
	}
}
