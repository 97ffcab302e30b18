package service

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dealpilot/dealpilot/internal/config"
	"github.com/dealpilot/dealpilot/internal/domain"
	"github.com/dealpilot/dealpilot/internal/domain/conflict"
	"github.com/dealpilot/dealpilot/internal/domain/decision"
	"github.com/dealpilot/dealpilot/internal/domain/workflow"
)

// ConflictService detects and arbitrates conflicts between agents. The
// agent priority table behind the priority_based strategy is external
// configuration, not hard-coded logic.
type ConflictService struct {
	priorities map[string]int

	mu       sync.Mutex
	outcomes map[string]*conflict.Outcome // resolved conflicts, for idempotent re-resolution
	now      func() time.Time
}

// NewConflictService creates a ConflictService with the given priority table.
func NewConflictService(cfg config.Conflict) *ConflictService {
	return &ConflictService{
		priorities: cfg.AgentPriorities,
		outcomes:   make(map[string]*conflict.Outcome),
		now:        time.Now,
	}
}

// DetectConflicts scans the state for contended-resource claims among
// active agents and for contradictory recent decisions. A clean state
// yields an empty slice: no false positives.
func (s *ConflictService) DetectConflicts(state *workflow.State, recent []decision.SupervisorDecision) []conflict.Resolution {
	var found []conflict.Resolution
	found = append(found, s.detectResourceConflicts(state)...)
	found = append(found, s.detectDecisionConflicts(recent)...)
	return found
}

// detectResourceConflicts finds tasks claimed by more than one active agent.
func (s *ConflictService) detectResourceConflicts(state *workflow.State) []conflict.Resolution {
	claims := make(map[string][]string) // task -> claiming agents
	for agent, task := range state.PendingTasks {
		if state.HasAgent(agent) {
			claims[task] = append(claims[task], agent)
		}
	}

	tasks := make([]string, 0, len(claims))
	for task, agents := range claims {
		if len(agents) >= 2 {
			tasks = append(tasks, task)
		}
	}
	sort.Strings(tasks)

	var found []conflict.Resolution
	for _, task := range tasks {
		agents := claims[task]
		sort.Strings(agents)
		found = append(found, conflict.Resolution{
			ConflictID:        uuid.NewString(),
			ConflictingAgents: agents,
			Type:              conflict.TypeResource,
			Resource:          task,
			Description:       fmt.Sprintf("Agents %v claim the same task %q", agents, task),
			DetectedAt:        s.now(),
		})
	}
	return found
}

// detectDecisionConflicts finds unexecuted recent decisions that contradict
// each other: same target agent, different proposed action.
func (s *ConflictService) detectDecisionConflicts(recent []decision.SupervisorDecision) []conflict.Resolution {
	var found []conflict.Resolution
	for i := range recent {
		a := &recent[i]
		if a.Executed || a.TargetAgent == "" {
			continue
		}
		for j := i + 1; j < len(recent); j++ {
			b := &recent[j]
			if b.Executed || b.TargetAgent != a.TargetAgent || b.Action == a.Action {
				continue
			}
			found = append(found, conflict.Resolution{
				ConflictID:        uuid.NewString(),
				ConflictingAgents: []string{a.TargetAgent, b.TargetAgent},
				Type:              conflict.TypeDecision,
				Decisions: []conflict.DecisionRef{
					{ID: a.ID, Action: a.Action, Priority: a.Priority},
					{ID: b.ID, Action: b.Action, Priority: b.Priority},
				},
				Description: fmt.Sprintf("Contradictory decisions for agent %s: %q vs %q",
					a.TargetAgent, a.Action, b.Action),
				DetectedAt: s.now(),
			})
		}
	}
	return found
}

// Resolve arbitrates one conflict by its type. Re-invoking Resolve on an
// already-resolved conflict returns the recorded outcome without repeating
// side effects.
func (s *ConflictService) Resolve(c *conflict.Resolution, state *workflow.State) (*conflict.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.outcomes[c.ConflictID]; ok {
		return prior, nil
	}
	if c.Resolved {
		// Resolved before this service instance saw it; reconstruct the outcome.
		outcome := &conflict.Outcome{
			Resolved:     true,
			Strategy:     c.ResolutionStrategy,
			ActionsTaken: c.ActionsTaken,
		}
		s.outcomes[c.ConflictID] = outcome
		return outcome, nil
	}

	var outcome *conflict.Outcome
	switch c.Type {
	case conflict.TypeResource:
		outcome = s.resolveResource(c, state)
	case conflict.TypeDecision:
		outcome = s.resolveDecision(c)
	default:
		return nil, fmt.Errorf("conflict %s has type %q: %w", c.ConflictID, c.Type, domain.ErrUnhandledConflictType)
	}

	c.Resolved = true
	c.ResolutionStrategy = outcome.Strategy
	c.ActionsTaken = outcome.ActionsTaken
	s.outcomes[c.ConflictID] = outcome

	slog.Info("conflict resolved",
		"conflict_id", c.ConflictID,
		"type", c.Type,
		"strategy", outcome.Strategy,
		"winner", outcome.Winner,
	)
	return outcome, nil
}

// resolveResource reassigns the contended resource to the highest-priority
// agent and drops the losing claims.
func (s *ConflictService) resolveResource(c *conflict.Resolution, state *workflow.State) *conflict.Outcome {
	winner := s.highestPriority(c.ConflictingAgents)
	for _, agent := range c.ConflictingAgents {
		if agent != winner {
			delete(state.PendingTasks, agent)
		}
	}
	return &conflict.Outcome{
		Resolved:     true,
		Strategy:     conflict.StrategyPriorityBased,
		Winner:       winner,
		ActionsTaken: []string{"Reallocated resources"},
	}
}

// resolveDecision keeps the higher-priority decision and discards the rest.
// Ties keep the earliest decision.
func (s *ConflictService) resolveDecision(c *conflict.Resolution) *conflict.Outcome {
	if len(c.Decisions) == 0 {
		return &conflict.Outcome{
			Resolved:     true,
			Strategy:     conflict.StrategyPriorityBased,
			ActionsTaken: []string{"Applied priority-based resolution"},
		}
	}

	winnerIdx := 0
	for i := 1; i < len(c.Decisions); i++ {
		if c.Decisions[i].Priority.Rank() > c.Decisions[winnerIdx].Priority.Rank() {
			winnerIdx = i
		}
	}

	var discarded []string
	for i := range c.Decisions {
		if i != winnerIdx {
			discarded = append(discarded, c.Decisions[i].ID)
		}
	}

	return &conflict.Outcome{
		Resolved:     true,
		Strategy:     conflict.StrategyPriorityBased,
		Winner:       c.Decisions[winnerIdx].ID,
		Discarded:    discarded,
		ActionsTaken: []string{"Applied priority-based resolution"},
	}
}

// highestPriority picks the agent with the highest configured priority.
// Ties break lexicographically for determinism.
func (s *ConflictService) highestPriority(agents []string) string {
	best := ""
	bestPrio := -1
	for _, agent := range agents {
		prio := s.priorities[agent]
		if prio > bestPrio || (prio == bestPrio && (best == "" || agent < best)) {
			best = agent
			bestPrio = prio
		}
	}
	return best
}

// Reset forgets recorded outcomes between workflow runs.
func (s *ConflictService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = make(map[string]*conflict.Outcome)
}
