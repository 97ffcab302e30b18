// Package hub implements the broadcast port as an in-process channel fan-out.
// Observers subscribe from the same process; no network transport is involved.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is one typed event delivered to subscribers.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans supervisor events out to in-process subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Message
	next int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Message)}
}

// Subscribe registers a new observer. The returned cancel function removes
// the subscription and closes its channel.
func (h *Hub) Subscribe(buffer int) (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan Message, buffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// BroadcastEvent marshals a typed event and delivers it to every subscriber.
// Slow subscribers with full buffers miss the event rather than block the
// supervisor tick.
func (h *Hub) BroadcastEvent(_ context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal hub event payload", "type", eventType, "error", err)
		return
	}
	msg := Message{Type: eventType, Payload: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
