package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dealpilot/dealpilot/internal/config"
	"github.com/dealpilot/dealpilot/internal/domain"
	"github.com/dealpilot/dealpilot/internal/domain/conflict"
	"github.com/dealpilot/dealpilot/internal/domain/coordination"
	"github.com/dealpilot/dealpilot/internal/domain/decision"
	"github.com/dealpilot/dealpilot/internal/domain/monitoring"
	"github.com/dealpilot/dealpilot/internal/domain/workflow"
	"github.com/dealpilot/dealpilot/internal/port/broadcast"
	"github.com/dealpilot/dealpilot/internal/service"
)

type recordedEvent struct {
	Type    string
	Payload any
}

type mockBroadcaster struct {
	events []recordedEvent
}

func (m *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, payload any) {
	m.events = append(m.events, recordedEvent{Type: eventType, Payload: payload})
}

func (m *mockBroadcaster) byType(eventType string) []recordedEvent {
	var out []recordedEvent
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newSupervisor(t *testing.T, hub broadcast.Broadcaster) *service.Supervisor {
	t.Helper()
	cfg := config.Defaults()
	sup, err := service.NewSupervisor(&cfg, hub, nil, nil)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	return sup
}

func TestProcessStateRoutesAndStages(t *testing.T) {
	hub := &mockBroadcaster{}
	sup := newSupervisor(t, hub)
	state := runningState(workflow.Deal{ID: "d1", Analyzed: false})

	d, err := sup.ProcessState(context.Background(), state)
	if err != nil {
		t.Fatalf("process state: %v", err)
	}
	if d.Type != decision.TypeRouteToAgent || d.TargetAgent != "analyst" {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if !d.Executed {
		t.Fatal("decision not marked executed")
	}
	if state.NextAgent != "analyst" || state.NextAction != "analyze_deal" {
		t.Fatalf("next action not staged: %s/%s", state.NextAgent, state.NextAction)
	}
	if len(state.AgentMessages) != 1 || state.AgentMessages[0].AgentType != "supervisor" {
		t.Fatalf("supervisor message missing: %+v", state.AgentMessages)
	}
	if len(hub.byType(broadcast.EventDecisionMade)) != 1 {
		t.Fatalf("decision.made not broadcast: %+v", hub.events)
	}
	if _, err := sup.Coordinator().Get("wf-1"); err != nil {
		t.Fatalf("coordination record missing: %v", err)
	}
}

func TestProcessStateEscalatesOnCriticalWorkflow(t *testing.T) {
	hub := &mockBroadcaster{}
	sup := newSupervisor(t, hub)
	state := runningState(workflow.Deal{ID: "d1", Analyzed: false})
	state.Status = workflow.StatusError

	d, err := sup.ProcessState(context.Background(), state)
	if err != nil {
		t.Fatalf("process state: %v", err)
	}
	if d.Type != decision.TypeEscalateToHuman {
		t.Fatalf("expected escalation, got %+v", d)
	}
	if !state.HumanApprovalRequired || len(state.PendingHumanDecisions) != 1 {
		t.Fatalf("escalation not queued: %+v", state)
	}
	if len(hub.byType(broadcast.EventEscalationRaised)) != 1 {
		t.Fatal("escalation.raised not broadcast")
	}
}

func TestProcessStateSuppressesRoutingWhilePending(t *testing.T) {
	sup := newSupervisor(t, nil)
	state := runningState(workflow.Deal{ID: "d1", Analyzed: false})
	state.PushHumanDecision("awaiting sign-off", nil, time.Now())

	d, err := sup.ProcessState(context.Background(), state)
	if err != nil {
		t.Fatalf("process state: %v", err)
	}
	if d.Type != decision.TypeContinueWorkflow {
		t.Fatalf("expected holding decision, got %+v", d)
	}
	if state.NextAgent != "" {
		t.Fatalf("routing staged during suppression: %s", state.NextAgent)
	}
}

func TestProcessStateEndsWorkflow(t *testing.T) {
	hub := &mockBroadcaster{}
	sup := newSupervisor(t, hub)
	state := runningState(workflow.Deal{ID: "d1", Status: workflow.DealStatusClosed})
	state.StageNextAction("scout", "find_new_deals")

	d, err := sup.ProcessState(context.Background(), state)
	if err != nil {
		t.Fatalf("process state: %v", err)
	}
	if d.Type != decision.TypeEndWorkflow {
		t.Fatalf("expected end_workflow, got %+v", d)
	}
	if state.Status != workflow.StatusCompleted {
		t.Fatalf("workflow not completed: %s", state.Status)
	}
	if state.NextAgent != "" || state.NextAction != "" {
		t.Fatal("staged action must be cleared on completion")
	}
	rec, err := sup.Coordinator().Get("wf-1")
	if err != nil {
		t.Fatalf("coordination record missing: %v", err)
	}
	if !rec.Archived {
		t.Fatal("coordination record not archived")
	}
	if len(hub.byType(broadcast.EventWorkflowEnded)) != 1 {
		t.Fatal("workflow.ended not broadcast")
	}
}

func TestHandleHumanResponseApprove(t *testing.T) {
	hub := &mockBroadcaster{}
	sup := newSupervisor(t, hub)
	state := runningState(workflow.Deal{ID: "d1", Status: workflow.DealStatusNew, Analyzed: false})
	state.Status = workflow.StatusError

	if _, err := sup.ProcessState(context.Background(), state); err != nil {
		t.Fatalf("process state: %v", err)
	}
	if !state.HumanApprovalRequired {
		t.Fatal("precondition: escalation expected")
	}

	result := sup.HandleHumanResponse(context.Background(), "approve", state)
	if result["status"] != service.ResponseApproved || result["action"] != "continue" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if state.HumanApprovalRequired || len(state.PendingHumanDecisions) != 0 {
		t.Fatal("approve must drain the escalation queue")
	}
	if len(hub.byType(broadcast.EventEscalationClosed)) != 1 {
		t.Fatal("escalation.closed not broadcast")
	}

	// With the queue drained, routing resumes on the next pass.
	state.Status = workflow.StatusRunning
	state.AgentMessages = nil
	d, err := sup.ProcessState(context.Background(), state)
	if err != nil {
		t.Fatalf("process state after approve: %v", err)
	}
	if d.Type != decision.TypeRouteToAgent {
		t.Fatalf("routing did not resume: %+v", d)
	}
}

func TestHandleHumanResponseReject(t *testing.T) {
	sup := newSupervisor(t, nil)
	state := runningState()
	state.PushHumanDecision("risk concern", nil, time.Now())

	result := sup.HandleHumanResponse(context.Background(), "reject", state)
	if result["status"] != service.ResponseRejected || result["action"] != "abort" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if state.HumanApprovalRequired {
		t.Fatal("reject must clear the approval flag")
	}
}

func TestHandleHumanResponseUnparseable(t *testing.T) {
	sup := newSupervisor(t, nil)
	state := runningState()
	state.PushHumanDecision("risk concern", nil, time.Now())

	result := sup.HandleHumanResponse(context.Background(), "maybe later?", state)
	if result["status"] != service.ResponseClarification {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !state.HumanApprovalRequired || len(state.PendingHumanDecisions) != 1 {
		t.Fatal("clarification must leave the escalation queue untouched")
	}
}

func TestExecuteTaskDispatch(t *testing.T) {
	sup := newSupervisor(t, nil)
	state := runningState(workflow.Deal{ID: "d1", Analyzed: false})

	result, err := sup.ExecuteTask(context.Background(), service.TaskMakeRoutingDecision, nil, state)
	if err != nil {
		t.Fatalf("make_routing_decision: %v", err)
	}
	if _, ok := result["decision"].(*decision.SupervisorDecision); !ok {
		t.Fatalf("missing decision in result: %+v", result)
	}

	result, err = sup.ExecuteTask(context.Background(), service.TaskMonitorPerformance, nil, state)
	if err != nil {
		t.Fatalf("monitor_performance: %v", err)
	}
	if _, ok := result["report"].(monitoring.Report); !ok {
		t.Fatalf("missing report in result: %+v", result)
	}
}

func TestExecuteTaskCoordinateAgents(t *testing.T) {
	sup := newSupervisor(t, nil)
	state := runningState()

	result, err := sup.ExecuteTask(context.Background(), service.TaskCoordinateAgents, map[string]any{
		"agents": []any{"scout", "analyst"},
		"mode":   "parallel",
	}, state)
	if err != nil {
		t.Fatalf("coordinate_agents: %v", err)
	}
	plan, ok := result["plan"].(*coordination.Plan)
	if !ok {
		t.Fatalf("missing plan in result: %+v", result)
	}
	if plan.Mode != coordination.ModeParallel || len(plan.Steps) != 2 {
		t.Fatalf("unexpected plan: %+v", plan)
	}

	rec, err := sup.Coordinator().Get("wf-1")
	if err != nil {
		t.Fatalf("coordination record missing: %v", err)
	}
	if rec.CoordinationID != plan.CoordinationID {
		t.Fatal("coordination record not linked to the plan")
	}
}

func TestExecuteTaskResolveConflict(t *testing.T) {
	sup := newSupervisor(t, nil)
	state := runningState()
	c := &conflict.Resolution{
		ConflictID:        "c1",
		Type:              conflict.TypeResource,
		ConflictingAgents: []string{"scout", "analyst"},
		Resource:          "review_deal_7",
	}

	result, err := sup.ExecuteTask(context.Background(), service.TaskResolveConflict, map[string]any{"conflict": c}, state)
	if err != nil {
		t.Fatalf("resolve_conflict: %v", err)
	}
	if resolved, _ := result["resolved"].(bool); !resolved {
		t.Fatalf("conflict not resolved: %+v", result)
	}
}

func TestExecuteTaskEscalate(t *testing.T) {
	sup := newSupervisor(t, nil)
	state := runningState()

	result, err := sup.ExecuteTask(context.Background(), service.TaskEscalateToHuman, map[string]any{
		"reason":  "manual portfolio review",
		"context": map[string]any{"deal_id": "d9"},
	}, state)
	if err != nil {
		t.Fatalf("escalate_to_human: %v", err)
	}
	d, ok := result["decision"].(*decision.SupervisorDecision)
	if !ok || d.Type != decision.TypeEscalateToHuman {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !state.HumanApprovalRequired {
		t.Fatal("escalation not applied to state")
	}
}

func TestExecuteTaskUnknown(t *testing.T) {
	sup := newSupervisor(t, nil)

	if _, err := sup.ExecuteTask(context.Background(), "reticulate_splines", nil, runningState()); !errors.Is(err, domain.ErrUnknownTask) {
		t.Fatalf("expected unknown task error, got %v", err)
	}
}

func TestDispatchedDecisionMarkedExecutedInHistory(t *testing.T) {
	sup := newSupervisor(t, nil)
	state := runningState(workflow.Deal{ID: "d1", Analyzed: false})

	d, err := sup.ProcessState(context.Background(), state)
	if err != nil {
		t.Fatalf("process state: %v", err)
	}
	if !d.Executed {
		t.Fatal("returned decision not marked executed")
	}

	logged := sup.Decisions()
	if len(logged) != 1 {
		t.Fatalf("expected 1 logged decision, got %d", len(logged))
	}
	if !logged[0].Executed || logged[0].ExecutedAt.IsZero() {
		t.Fatalf("decision log entry missing execution mark: %+v", logged[0])
	}

	recent := sup.Monitor().RecentDecisions(1)
	if len(recent) != 1 || !recent[0].Executed {
		t.Fatalf("history ring entry missing execution mark: %+v", recent)
	}
}

func TestHistoryFeedsResolverOnlyExecutedDecisions(t *testing.T) {
	// After each pass the dispatched decision carries its execution mark,
	// so conflict detection on later passes skips it.
	sup := newSupervisor(t, nil)
	resolver := service.NewConflictService(config.Defaults().Conflict)

	state := runningState(workflow.Deal{ID: "d1", Status: workflow.DealStatusNew, Analyzed: false})
	if _, err := sup.ProcessState(context.Background(), state); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	state.CurrentDeals[0].Analyzed = true
	state.CurrentDeals[0].Status = workflow.DealStatusApproved
	if _, err := sup.ProcessState(context.Background(), state); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	recent := sup.Monitor().RecentDecisions(10)
	if len(recent) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(recent))
	}
	for _, d := range recent {
		if !d.Executed {
			t.Fatalf("history entry for dispatched decision %s has Executed=false", d.ID)
		}
	}

	clean := &workflow.State{WorkflowID: "wf-1"}
	if found := resolver.DetectConflicts(clean, recent); len(found) != 0 {
		t.Fatalf("dispatched decisions raised conflicts: %+v", found)
	}
}

func TestResetClearsSupervisorState(t *testing.T) {
	sup := newSupervisor(t, nil)
	state := runningState(workflow.Deal{ID: "d1", Analyzed: false})
	if _, err := sup.ProcessState(context.Background(), state); err != nil {
		t.Fatalf("process state: %v", err)
	}

	sup.Reset()

	if got := sup.Decisions(); len(got) != 0 {
		t.Fatalf("decision log survived reset: %+v", got)
	}
	if _, err := sup.Coordinator().Get("wf-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("coordination records survived reset: %v", err)
	}
}
