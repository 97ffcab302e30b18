package hub

import (
	"context"
	"encoding/json"
	"testing"
)

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(4)
	defer cancelA()
	b, cancelB := h.Subscribe(4)
	defer cancelB()

	h.BroadcastEvent(context.Background(), "decision.made", map[string]any{"id": "d1"})

	for _, ch := range []<-chan Message{a, b} {
		select {
		case msg := <-ch:
			if msg.Type != "decision.made" {
				t.Fatalf("wrong event type: %s", msg.Type)
			}
			var payload map[string]any
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				t.Fatalf("unmarshal payload: %v", err)
			}
			if payload["id"] != "d1" {
				t.Fatalf("wrong payload: %v", payload)
			}
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	defer cancel()

	// Second broadcast overflows the buffer; it must drop, not block.
	h.BroadcastEvent(context.Background(), "decision.made", "first")
	h.BroadcastEvent(context.Background(), "decision.made", "second")

	if len(ch) != 1 {
		t.Fatalf("expected exactly 1 buffered message, got %d", len(ch))
	}
}

func TestCancelRemovesSubscription(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)

	cancel()
	if h.SubscriberCount() != 0 {
		t.Fatalf("subscription survived cancel: %d", h.SubscriberCount())
	}
	if _, open := <-ch; open {
		t.Fatal("channel not closed on cancel")
	}

	// Double cancel is a no-op.
	cancel()
}

func TestBroadcastWithNoSubscribers(t *testing.T) {
	h := NewHub()
	h.BroadcastEvent(context.Background(), "workflow.ended", nil)
}
