// Package executor realizes coordination plan shapes against registered
// worker agents. The supervisor only declares concurrency intent; this is
// the host-side component that actually runs agents, sequentially or in a
// bounded fan-out.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dealpilot/dealpilot/internal/config"
	"github.com/dealpilot/dealpilot/internal/domain"
	"github.com/dealpilot/dealpilot/internal/domain/coordination"
	"github.com/dealpilot/dealpilot/internal/domain/workflow"
	"github.com/dealpilot/dealpilot/internal/logger"
	"github.com/dealpilot/dealpilot/internal/port/worker"
	"github.com/dealpilot/dealpilot/internal/resilience"
)

// StepResult is the outcome of one plan step.
type StepResult struct {
	Agent  string
	Result *worker.TaskResult
	Err    error
}

// Executor dispatches worker agents according to plan shape. Worker calls
// go through a per-agent circuit breaker, and state writes are serialized
// per workflow: at most one in-flight mutation per workflow ID.
type Executor struct {
	breakers    *resilience.Registry
	maxParallel int64

	mu      sync.Mutex
	runners map[string]worker.Runner
	wfLocks map[string]*sync.Mutex
}

// New creates an Executor.
func New(coordCfg config.Coordinator, breakerCfg config.Breaker) *Executor {
	return &Executor{
		breakers:    resilience.NewRegistry(breakerCfg.MaxFailures, breakerCfg.Timeout),
		maxParallel: int64(coordCfg.MaxParallel),
		runners:     make(map[string]worker.Runner),
		wfLocks:     make(map[string]*sync.Mutex),
	}
}

// Register adds a worker runner, keyed by its agent type.
func (e *Executor) Register(r worker.Runner) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runners[r.AgentType()] = r
}

// RunPlan executes every step of the plan. Sequential plans run steps in
// order and stop at the first failure; parallel plans fan out bounded by
// the configured parallelism, collecting all results.
func (e *Executor) RunPlan(ctx context.Context, plan *coordination.Plan, state *workflow.State) ([]StepResult, error) {
	ctx = logger.WithWorkflowID(ctx, state.WorkflowID)

	switch plan.Mode {
	case coordination.ModeSequential:
		return e.runSequential(ctx, plan, state)
	case coordination.ModeParallel:
		return e.runParallel(ctx, plan, state)
	default:
		return nil, fmt.Errorf("plan mode %q: %w", plan.Mode, domain.ErrConfiguration)
	}
}

func (e *Executor) runSequential(ctx context.Context, plan *coordination.Plan, state *workflow.State) ([]StepResult, error) {
	results := make([]StepResult, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		res := e.runStep(ctx, step.Agent, state)
		results = append(results, res)
		if res.Err != nil {
			return results, fmt.Errorf("step %s: %w", step.Agent, res.Err)
		}
	}
	return results, nil
}

func (e *Executor) runParallel(ctx context.Context, plan *coordination.Plan, state *workflow.State) ([]StepResult, error) {
	sem := semaphore.NewWeighted(e.maxParallel)
	results := make([]StepResult, len(plan.Steps))

	g, gctx := errgroup.WithContext(ctx)
	for i, step := range plan.Steps {
		i, step := i, step
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = StepResult{Agent: step.Agent, Err: err}
				return err
			}
			defer sem.Release(1)

			results[i] = e.runStep(gctx, step.Agent, state)
			return results[i].Err
		})
	}

	err := g.Wait()
	return results, err
}

// RunNext dispatches the action the supervisor staged on the state, if
// any, clearing it afterwards.
func (e *Executor) RunNext(ctx context.Context, state *workflow.State) (*StepResult, error) {
	if state.NextAgent == "" {
		return nil, nil
	}
	agent := state.NextAgent
	action := state.NextAction
	state.ClearNextAction()

	res := e.runTask(ctx, agent, action, nil, state)
	return &res, res.Err
}

// runStep runs the agent's staged default task for plan execution.
func (e *Executor) runStep(ctx context.Context, agent string, state *workflow.State) StepResult {
	return e.runTask(ctx, agent, "execute", nil, state)
}

// runTask calls one worker through its breaker while holding the
// workflow's write lock.
func (e *Executor) runTask(ctx context.Context, agent, task string, data map[string]any, state *workflow.State) StepResult {
	e.mu.Lock()
	runner, ok := e.runners[agent]
	e.mu.Unlock()
	if !ok {
		return StepResult{Agent: agent, Err: fmt.Errorf("worker %s: %w", agent, domain.ErrNotFound)}
	}

	lock := e.workflowLock(state.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	var result *worker.TaskResult
	err := e.breakers.For(agent).Execute(func() error {
		res, err := runner.ExecuteTask(ctx, task, data, state)
		if err != nil {
			return err
		}
		result = res
		if !res.Success {
			return fmt.Errorf("task %s failed: %s", task, res.Error)
		}
		return nil
	})
	if err != nil {
		slog.Warn("worker task failed",
			"workflow_id", logger.WorkflowID(ctx),
			"agent", agent,
			"task", task,
			"error", err,
		)
		return StepResult{Agent: agent, Result: result, Err: err}
	}

	return StepResult{Agent: agent, Result: result}
}

// workflowLock returns the mutex serializing writes for one workflow.
func (e *Executor) workflowLock(workflowID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.wfLocks[workflowID]
	if !ok {
		lock = &sync.Mutex{}
		e.wfLocks[workflowID] = lock
	}
	return lock
}
