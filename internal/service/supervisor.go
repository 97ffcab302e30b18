package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dealpilot/dealpilot/internal/adapter/otel"
	"github.com/dealpilot/dealpilot/internal/config"
	"github.com/dealpilot/dealpilot/internal/domain"
	"github.com/dealpilot/dealpilot/internal/domain/conflict"
	"github.com/dealpilot/dealpilot/internal/domain/coordination"
	"github.com/dealpilot/dealpilot/internal/domain/decision"
	"github.com/dealpilot/dealpilot/internal/domain/monitoring"
	"github.com/dealpilot/dealpilot/internal/domain/workflow"
	"github.com/dealpilot/dealpilot/internal/port/broadcast"
	"github.com/dealpilot/dealpilot/internal/port/cache"
)

// Task names accepted by Supervisor.ExecuteTask.
const (
	TaskMakeRoutingDecision = "make_routing_decision"
	TaskCoordinateAgents    = "coordinate_agents"
	TaskResolveConflict     = "resolve_conflict"
	TaskMonitorPerformance  = "monitor_performance"
	TaskEscalateToHuman     = "escalate_to_human"
)

// Human response outcomes returned by HandleHumanResponse.
const (
	ResponseApproved      = "approved"
	ResponseRejected      = "rejected"
	ResponseClarification = "clarification_needed"
)

// Supervisor orchestrates the decision engine, coordination manager,
// conflict resolver, and performance monitor behind a task-dispatch and
// human-escalation interface. One ProcessState call is a fully synchronous
// read-analyze-decide-write pass; callers serialize per workflow.
type Supervisor struct {
	engine      *DecisionEngine
	coordinator *CoordinationService
	resolver    *ConflictService
	monitor     *MonitorService
	hub         broadcast.Broadcaster // optional
	metrics     *otel.Metrics         // optional

	decisions []*decision.SupervisorDecision // append-only decision log
	now       func() time.Time
}

// NewSupervisor builds a Supervisor and its four subsystems from config.
// hub, snapshots, and metrics may be nil.
func NewSupervisor(cfg *config.Config, hub broadcast.Broadcaster, snapshots cache.Cache, metrics *otel.Metrics) (*Supervisor, error) {
	engine, err := NewDecisionEngine(cfg.Supervisor)
	if err != nil {
		return nil, fmt.Errorf("decision engine: %w", err)
	}

	return &Supervisor{
		engine:      engine,
		coordinator: NewCoordinationService(),
		resolver:    NewConflictService(cfg.Conflict),
		monitor:     NewMonitorService(cfg.Monitor, snapshots),
		hub:         hub,
		metrics:     metrics,
		now:         time.Now,
	}, nil
}

// Coordinator exposes the coordination manager for the hosting executor.
func (s *Supervisor) Coordinator() *CoordinationService { return s.coordinator }

// Monitor exposes the performance monitor for read-only inspection.
func (s *Supervisor) Monitor() *MonitorService { return s.monitor }

// ProcessState runs one supervision pass: situation analysis, decision,
// state mutation, conflict arbitration, monitoring update. The mutated
// state and the selected decision are returned.
func (s *Supervisor) ProcessState(ctx context.Context, state *workflow.State) (*decision.SupervisorDecision, error) {
	start := s.now()

	analysis := s.monitor.BuildAnalysis(state)

	d := s.decide(state, analysis)

	// Record before dispatch so conflict detection sees the newest decision.
	// The log and ring hold the live record: MarkExecuted after dispatch is
	// visible in the history.
	s.decisions = append(s.decisions, d)
	s.monitor.Record(d)

	state.AppendMessage("supervisor", fmt.Sprintf("Supervisor: %s", d.Reasoning), messagePriority(d.Priority), s.now())
	s.coordinator.UpdateCoordination(state)

	switch d.Type {
	case decision.TypeRouteToAgent:
		state.StageNextAction(d.TargetAgent, d.Action)
	case decision.TypeEscalateToHuman:
		state.PushHumanDecision(d.Reasoning, map[string]any{"decision_id": d.ID}, s.now())
		if s.metrics != nil {
			s.metrics.Escalations.Add(ctx, 1)
		}
		s.broadcast(ctx, broadcast.EventEscalationRaised, d)
	case decision.TypeEndWorkflow:
		state.Status = workflow.StatusCompleted
		state.ClearNextAction()
		s.coordinator.Archive(state.WorkflowID)
		s.broadcast(ctx, broadcast.EventWorkflowEnded, d)
	}

	s.arbitrate(ctx, state)
	s.monitor.Update(ctx, state)

	d.MarkExecuted(s.now())
	s.broadcast(ctx, broadcast.EventDecisionMade, d)
	if s.metrics != nil {
		s.metrics.DecisionsMade.Add(ctx, 1)
		s.metrics.TickDuration.Record(ctx, s.now().Sub(start).Seconds())
	}

	slog.Info("supervision pass complete",
		"workflow_id", state.WorkflowID,
		"decision_type", d.Type,
		"target_agent", d.TargetAgent,
		"confidence", d.Confidence,
	)
	return d, nil
}

// decide asks the engine for a decision, applying two façade policies:
// while a human approval is pending, routing is suppressed in favor of a
// holding decision; and any subsystem error becomes a critical escalation
// rather than a silent continuation.
func (s *Supervisor) decide(state *workflow.State, analysis *monitoring.Analysis) *decision.SupervisorDecision {
	if state.HumanApprovalRequired {
		return &decision.SupervisorDecision{
			ID:         uuid.NewString(),
			Type:       decision.TypeContinueWorkflow,
			Action:     "await_human_response",
			Reasoning:  "Routing suppressed while a human decision is pending",
			Priority:   decision.PriorityHigh,
			Confidence: 1.0,
			CreatedAt:  s.now(),
		}
	}

	d, err := s.engine.MakeDecision(state, analysis)
	if err != nil {
		return s.failSafeDecision(err)
	}
	return d
}

// failSafeDecision converts a subsystem error into a critical human
// escalation. Unknown situations go to a human, never to silent
// continuation.
func (s *Supervisor) failSafeDecision(err error) *decision.SupervisorDecision {
	return &decision.SupervisorDecision{
		ID:         uuid.NewString(),
		Type:       decision.TypeEscalateToHuman,
		Action:     "manual_review",
		Reasoning:  fmt.Sprintf("Supervisor subsystem failure requires human review: %v", err),
		Priority:   decision.PriorityCritical,
		Confidence: 1.0,
		CreatedAt:  s.now(),
	}
}

// arbitrate detects and resolves conflicts for the current pass. A
// conflict type without a strategy escalates instead of being marked
// resolved.
func (s *Supervisor) arbitrate(ctx context.Context, state *workflow.State) {
	conflicts := s.resolver.DetectConflicts(state, s.monitor.RecentDecisions(len(s.decisions)))
	for i := range conflicts {
		c := &conflicts[i]
		if s.metrics != nil {
			s.metrics.ConflictsDetected.Add(ctx, 1)
		}
		s.broadcast(ctx, broadcast.EventConflictDetected, c)

		outcome, err := s.resolver.Resolve(c, state)
		if err != nil {
			esc := s.failSafeDecision(err)
			s.decisions = append(s.decisions, esc)
			s.monitor.Record(esc)
			state.PushHumanDecision(esc.Reasoning, map[string]any{"conflict_id": c.ConflictID}, s.now())
			s.broadcast(ctx, broadcast.EventEscalationRaised, esc)
			continue
		}

		state.AppendMessage("supervisor",
			fmt.Sprintf("Conflict %s resolved via %s", c.ConflictID, outcome.Strategy), 2, s.now())
		if s.metrics != nil {
			s.metrics.ConflictsResolved.Add(ctx, 1)
		}
		s.broadcast(ctx, broadcast.EventConflictResolved, c)
	}
}

// ExecuteTask dispatches one named supervisor task. The result is a
// serializable map consumed by the hosting executor.
func (s *Supervisor) ExecuteTask(ctx context.Context, name string, data map[string]any, state *workflow.State) (map[string]any, error) {
	switch name {
	case TaskMakeRoutingDecision:
		d, err := s.ProcessState(ctx, state)
		if err != nil {
			return nil, err
		}
		return map[string]any{"decision": d}, nil

	case TaskCoordinateAgents:
		plan, err := s.coordinateAgents(data, state)
		if err != nil {
			return nil, err
		}
		return map[string]any{"plan": plan}, nil

	case TaskResolveConflict:
		c, ok := data["conflict"].(*conflict.Resolution)
		if !ok {
			return nil, fmt.Errorf("resolve_conflict needs a conflict record: %w", domain.ErrConfiguration)
		}
		outcome, err := s.resolver.Resolve(c, state)
		if err != nil {
			return nil, err
		}
		return map[string]any{"resolved": outcome.Resolved, "actions_taken": outcome.ActionsTaken}, nil

	case TaskMonitorPerformance:
		report := s.monitor.Update(ctx, state)
		return map[string]any{"report": report}, nil

	case TaskEscalateToHuman:
		reason, _ := data["reason"].(string)
		details, _ := data["context"].(map[string]any)
		d := s.EscalateToHuman(ctx, reason, details, state)
		return map[string]any{"decision": d}, nil

	default:
		return nil, fmt.Errorf("task %q: %w", name, domain.ErrUnknownTask)
	}
}

// coordinateAgents builds a plan from task data and refreshes the
// workflow's coordination record.
func (s *Supervisor) coordinateAgents(data map[string]any, state *workflow.State) (*coordination.Plan, error) {
	agents, err := stringSlice(data["agents"])
	if err != nil {
		return nil, fmt.Errorf("coordinate_agents: %w", err)
	}
	mode := coordination.ModeSequential
	if m, ok := data["mode"].(string); ok && m != "" {
		mode = coordination.Mode(m)
	}

	plan, err := s.coordinator.CreatePlan(agents, mode)
	if err != nil {
		return nil, err
	}
	rec := s.coordinator.UpdateCoordination(state)
	rec.CoordinationID = plan.CoordinationID
	rec.Steps = plan.Steps
	return plan, nil
}

// EscalateToHuman pushes a pending decision for a human operator and
// returns the escalation record.
func (s *Supervisor) EscalateToHuman(ctx context.Context, reason string, details map[string]any, state *workflow.State) *decision.SupervisorDecision {
	d := &decision.SupervisorDecision{
		ID:         uuid.NewString(),
		Type:       decision.TypeEscalateToHuman,
		Action:     "manual_review",
		Reasoning:  reason,
		Priority:   decision.PriorityCritical,
		Confidence: 1.0,
		CreatedAt:  s.now(),
	}
	s.decisions = append(s.decisions, d)
	s.monitor.Record(d)
	state.PushHumanDecision(reason, details, s.now())

	if s.metrics != nil {
		s.metrics.Escalations.Add(ctx, 1)
	}
	s.broadcast(ctx, broadcast.EventEscalationRaised, d)

	slog.Warn("escalated to human", "workflow_id", state.WorkflowID, "reason", reason)
	return d
}

// HandleHumanResponse applies a human operator's answer to the pending
// escalations. "approve" drains the queue and continues; "reject" drains
// and aborts; anything else requests clarification and leaves the queue
// and flag untouched.
func (s *Supervisor) HandleHumanResponse(ctx context.Context, response string, state *workflow.State) map[string]any {
	switch response {
	case "approve":
		drained := state.DrainHumanDecisions()
		s.broadcast(ctx, broadcast.EventEscalationClosed, map[string]any{"response": response, "drained": len(drained)})
		return map[string]any{"status": ResponseApproved, "action": "continue"}
	case "reject":
		drained := state.DrainHumanDecisions()
		s.broadcast(ctx, broadcast.EventEscalationClosed, map[string]any{"response": response, "drained": len(drained)})
		return map[string]any{"status": ResponseRejected, "action": "abort"}
	default:
		return map[string]any{"status": ResponseClarification}
	}
}

// Decisions returns a copy of the append-only decision log.
func (s *Supervisor) Decisions() []decision.SupervisorDecision {
	out := make([]decision.SupervisorDecision, len(s.decisions))
	for i, d := range s.decisions {
		out[i] = *d
	}
	return out
}

// Reset clears all supervisor-owned state between workflow runs.
func (s *Supervisor) Reset() {
	s.decisions = nil
	s.coordinator.Reset()
	s.resolver.Reset()
	s.monitor.Reset()
}

func (s *Supervisor) broadcast(ctx context.Context, eventType string, payload any) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, eventType, payload)
	}
}

// messagePriority maps a decision priority to the message priority scale,
// keeping routine routing messages below the error threshold.
func messagePriority(p decision.Priority) int {
	switch p {
	case decision.PriorityCritical:
		return 5
	case decision.PriorityHigh:
		return 3
	case decision.PriorityMedium:
		return 2
	default:
		return 1
	}
}

// stringSlice coerces task data into a []string, accepting either form
// the hosting executor may pass.
func stringSlice(v any) ([]string, error) {
	switch vs := v.(type) {
	case []string:
		return vs, nil
	case []any:
		out := make([]string, 0, len(vs))
		for _, item := range vs {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New("agents must be strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.New("missing agents list")
	}
}
