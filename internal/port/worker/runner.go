// Package worker defines the collaborator contract every worker agent
// exposes to the supervisor. The supervisor depends only on this shape,
// never on any agent's internal logic.
package worker

import (
	"context"

	"github.com/dealpilot/dealpilot/internal/domain/workflow"
)

// TaskResult is the uniform result envelope returned by every worker task.
type TaskResult struct {
	Success         bool           `json:"success"`
	Data            map[string]any `json:"data,omitempty"`
	Error           string         `json:"error,omitempty"`
	ConfidenceScore float64        `json:"confidence_score"`
	ExecutionTime   float64        `json:"execution_time"`
}

// Runner is the port interface for a worker agent.
type Runner interface {
	// AgentType returns the agent's routing name ("scout", "analyst", ...).
	AgentType() string

	// ExecuteTask performs the named task against the shared workflow state.
	// Long-running work happens here; the supervisor never blocks on it.
	ExecuteTask(ctx context.Context, name string, data map[string]any, state *workflow.State) (*TaskResult, error)
}
