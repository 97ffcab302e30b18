// Package broadcast defines the port for publishing supervisor events to
// interested observers (dashboards, audit sinks, the hosting scheduler).
package broadcast

import "context"

// Event types emitted by the supervisor.
const (
	EventDecisionMade     = "decision.made"
	EventEscalationRaised = "escalation.raised"
	EventEscalationClosed = "escalation.closed"
	EventConflictDetected = "conflict.detected"
	EventConflictResolved = "conflict.resolved"
	EventWorkflowEnded    = "workflow.ended"
)

// Broadcaster publishes typed events to all connected observers.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected observers.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
