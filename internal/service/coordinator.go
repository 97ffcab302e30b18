package service

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dealpilot/dealpilot/internal/domain"
	"github.com/dealpilot/dealpilot/internal/domain/coordination"
	"github.com/dealpilot/dealpilot/internal/domain/workflow"
)

// CoordinationService builds coordination plans and maintains one
// WorkflowCoordination record per active workflow.
type CoordinationService struct {
	mu      sync.Mutex
	records map[string]*coordination.WorkflowCoordination
	now     func() time.Time
}

// NewCoordinationService creates an empty CoordinationService.
func NewCoordinationService() *CoordinationService {
	return &CoordinationService{
		records: make(map[string]*coordination.WorkflowCoordination),
		now:     time.Now,
	}
}

// CreatePlan builds a coordination plan over the given agents, in order.
// Sequential mode chains each step onto its predecessor (strict hand-off);
// parallel mode leaves every step independent (fan-out). The plan is a pure
// graph shape; agent capability compatibility is not validated here.
func (s *CoordinationService) CreatePlan(agents []string, mode coordination.Mode) (*coordination.Plan, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("plan needs at least one agent: %w", domain.ErrConfiguration)
	}

	steps := make([]coordination.Step, len(agents))
	switch mode {
	case coordination.ModeSequential:
		for i, agent := range agents {
			step := coordination.Step{Agent: agent}
			if i > 0 {
				step.DependsOn = agents[i-1]
			}
			steps[i] = step
		}
	case coordination.ModeParallel:
		for i, agent := range agents {
			steps[i] = coordination.Step{Agent: agent}
		}
	default:
		return nil, fmt.Errorf("unknown coordination mode %q: %w", mode, domain.ErrConfiguration)
	}

	plan := &coordination.Plan{
		CoordinationID: uuid.NewString(),
		Mode:           mode,
		Steps:          steps,
		CreatedAt:      s.now(),
	}

	slog.Info("coordination plan created",
		"coordination_id", plan.CoordinationID,
		"mode", mode,
		"agents", len(agents),
	)
	return plan, nil
}

// UpdateCoordination upserts the WorkflowCoordination keyed by the state's
// workflow ID. Idempotent: repeated calls with unchanged state leave
// ActiveAgents and PendingTasks unchanged and only advance the timestamp.
func (s *CoordinationService) UpdateCoordination(state *workflow.State) *coordination.WorkflowCoordination {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[state.WorkflowID]
	if !ok {
		rec = &coordination.WorkflowCoordination{
			WorkflowID:     state.WorkflowID,
			CoordinationID: uuid.NewString(),
			PendingTasks:   make(map[string]string),
		}
		s.records[state.WorkflowID] = rec
	}

	rec.ActiveAgents = slices.Clone(state.ActiveAgents)
	slices.Sort(rec.ActiveAgents)
	maps.Copy(rec.PendingTasks, state.PendingTasks)
	rec.LastCoordination = s.now()

	return rec
}

// Get returns the coordination record for a workflow.
func (s *CoordinationService) Get(workflowID string) (*coordination.WorkflowCoordination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[workflowID]
	if !ok {
		return nil, fmt.Errorf("coordination for workflow %s: %w", workflowID, domain.ErrNotFound)
	}
	return rec, nil
}

// Archive flags the workflow's coordination record as archived. The record
// stays readable; workflows are never physically deleted.
func (s *CoordinationService) Archive(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[workflowID]; ok {
		rec.Archived = true
	}
}

// Reset drops all coordination records between workflow runs.
func (s *CoordinationService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*coordination.WorkflowCoordination)
}
