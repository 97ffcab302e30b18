// Package conflict defines conflict records detected and arbitrated by the
// supervisor's conflict resolver.
package conflict

import (
	"time"

	"github.com/dealpilot/dealpilot/internal/domain/decision"
)

// Type classifies a conflict between agents.
type Type string

const (
	// TypeResource is raised when multiple agents claim the same deal.
	TypeResource Type = "resource_conflict"
	// TypeDecision is raised when recent decisions contradict each other.
	TypeDecision Type = "decision_conflict"
)

// StrategyPriorityBased resolves a conflict in favor of the higher-priority agent.
const StrategyPriorityBased = "priority_based"

// DecisionRef identifies one of the contradictory decisions behind a
// decision conflict.
type DecisionRef struct {
	ID       string            `json:"id"`
	Action   string            `json:"action"`
	Priority decision.Priority `json:"priority"`
}

// Resolution is a detected inconsistency between agents' claims or
// decisions. Resolved is monotonic: it transitions false to true exactly
// once and is terminal.
type Resolution struct {
	ConflictID         string        `json:"conflict_id"`
	ConflictingAgents  []string      `json:"conflicting_agents"`
	Type               Type          `json:"conflict_type"`
	Resource           string        `json:"resource,omitempty"`
	Decisions          []DecisionRef `json:"decisions,omitempty"`
	Description        string        `json:"description"`
	ResolutionStrategy string        `json:"resolution_strategy,omitempty"`
	Resolved           bool          `json:"resolved"`
	ActionsTaken       []string      `json:"actions_taken"`
	DetectedAt         time.Time     `json:"detected_at"`
}

// Outcome is the result of a resolution attempt. Winner names the agent
// keeping the resource for resource conflicts, or the surviving decision ID
// for decision conflicts; Discarded lists the decision IDs dropped.
type Outcome struct {
	Resolved     bool     `json:"resolved"`
	Strategy     string   `json:"strategy"`
	Winner       string   `json:"winner,omitempty"`
	Discarded    []string `json:"discarded,omitempty"`
	ActionsTaken []string `json:"actions_taken"`
}
