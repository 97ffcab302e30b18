// Package decision defines the SupervisorDecision domain entity.
package decision

import (
	"fmt"
	"time"

	"github.com/dealpilot/dealpilot/internal/domain"
)

// Type classifies what the supervisor decided to do next.
type Type string

const (
	TypeRouteToAgent     Type = "route_to_agent"
	TypeEscalateToHuman  Type = "escalate_to_human"
	TypeEndWorkflow      Type = "end_workflow"
	TypeContinueWorkflow Type = "continue_workflow"
	TypeResolveConflict  Type = "resolve_conflict"
)

// Priority ranks how urgently a decision should be acted on.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities for arbitration: low < medium < high < critical.
func (p Priority) Rank() int {
	switch p {
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 0
	}
}

// SupervisorDecision is one selected next action for a workflow.
// Records are append-only; Executed is the only field mutated after creation.
type SupervisorDecision struct {
	ID          string    `json:"id"`
	Type        Type      `json:"decision_type"`
	TargetAgent string    `json:"target_agent,omitempty"`
	Action      string    `json:"action"`
	Reasoning   string    `json:"reasoning"`
	Priority    Priority  `json:"priority"`
	Confidence  float64   `json:"confidence"`
	Executed    bool      `json:"executed"`
	CreatedAt   time.Time `json:"created_at"`
	ExecutedAt  time.Time `json:"executed_at,omitzero"`
}

// Draft is a rule's proposed decision before the engine materializes it
// with an ID and timestamp.
type Draft struct {
	Type        Type
	TargetAgent string
	Action      string
	Reasoning   string
	Priority    Priority
	Confidence  float64
}

// Validate checks invariants: confidence in [0,1] and the fields required
// by the decision type.
func (d *SupervisorDecision) Validate() error {
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range: %w", d.Confidence, domain.ErrInvalidDecision)
	}
	switch d.Type {
	case TypeRouteToAgent:
		if d.TargetAgent == "" {
			return fmt.Errorf("route decision without target agent: %w", domain.ErrInvalidDecision)
		}
	case TypeEscalateToHuman, TypeEndWorkflow, TypeContinueWorkflow, TypeResolveConflict:
	default:
		return fmt.Errorf("decision type %q: %w", d.Type, domain.ErrInvalidDecision)
	}
	return nil
}

// MarkExecuted flags the decision as dispatched. Idempotent.
func (d *SupervisorDecision) MarkExecuted(at time.Time) {
	if d.Executed {
		return
	}
	d.Executed = true
	d.ExecutedAt = at
}
