// Package coordination defines coordination plans and the per-workflow
// coordination record maintained by the supervisor.
package coordination

import "time"

// Mode declares how a set of agents is intended to execute. It is a
// declaration of concurrency intent for the external executor, not an
// enforcement mechanism.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// Step is one agent slot in a coordination plan. DependsOn names the agent
// whose step must finish first; empty means the step has no predecessor.
type Step struct {
	Agent     string `json:"agent"`
	DependsOn string `json:"depends_on,omitempty"`
}

// Plan is a declared execution-order graph over agents for one workflow.
type Plan struct {
	CoordinationID string    `json:"coordination_id"`
	Mode           Mode      `json:"mode"`
	Steps          []Step    `json:"steps"`
	CreatedAt      time.Time `json:"created_at"`
}

// WorkflowCoordination tracks which agents are active on a workflow and
// what they are working on. One record per active workflow; archived, never
// deleted, when the workflow ends.
type WorkflowCoordination struct {
	WorkflowID       string            `json:"workflow_id"`
	CoordinationID   string            `json:"coordination_id"`
	ActiveAgents     []string          `json:"active_agents"`
	PendingTasks     map[string]string `json:"pending_tasks"`
	Steps            []Step            `json:"steps,omitempty"`
	LastCoordination time.Time         `json:"last_coordination"`
	Archived         bool              `json:"archived"`
}
