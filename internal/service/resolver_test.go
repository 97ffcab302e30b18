package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dealpilot/dealpilot/internal/config"
	"github.com/dealpilot/dealpilot/internal/domain"
	"github.com/dealpilot/dealpilot/internal/domain/conflict"
	"github.com/dealpilot/dealpilot/internal/domain/decision"
	"github.com/dealpilot/dealpilot/internal/domain/workflow"
	"github.com/dealpilot/dealpilot/internal/service"
)

func newConflictService() *service.ConflictService {
	return service.NewConflictService(config.Defaults().Conflict)
}

func TestDetectConflictsCleanState(t *testing.T) {
	svc := newConflictService()
	state := &workflow.State{
		WorkflowID:   "wf-1",
		ActiveAgents: []string{"scout", "analyst"},
		PendingTasks: map[string]string{"scout": "find_new_deals", "analyst": "analyze_deal"},
	}

	if found := svc.DetectConflicts(state, nil); len(found) != 0 {
		t.Fatalf("clean state produced %d conflicts: %+v", len(found), found)
	}
}

func TestDetectResourceConflict(t *testing.T) {
	svc := newConflictService()
	state := &workflow.State{
		WorkflowID:   "wf-1",
		ActiveAgents: []string{"scout", "analyst"},
		PendingTasks: map[string]string{"scout": "review_deal_7", "analyst": "review_deal_7"},
	}

	found := svc.DetectConflicts(state, nil)
	if len(found) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(found))
	}
	c := found[0]
	if c.Type != conflict.TypeResource {
		t.Fatalf("expected resource conflict, got %s", c.Type)
	}
	if c.Resource != "review_deal_7" {
		t.Fatalf("wrong resource: %s", c.Resource)
	}
	if len(c.ConflictingAgents) != 2 {
		t.Fatalf("wrong agents: %v", c.ConflictingAgents)
	}
}

func TestResourceConflictIgnoresInactiveAgents(t *testing.T) {
	svc := newConflictService()
	state := &workflow.State{
		WorkflowID:   "wf-1",
		ActiveAgents: []string{"scout"}, // analyst not active, its claim does not count
		PendingTasks: map[string]string{"scout": "review_deal_7", "analyst": "review_deal_7"},
	}

	if found := svc.DetectConflicts(state, nil); len(found) != 0 {
		t.Fatalf("inactive agent claim raised a conflict: %+v", found)
	}
}

func TestResolveResourceConflictByPriority(t *testing.T) {
	svc := newConflictService()
	state := &workflow.State{
		WorkflowID:   "wf-1",
		ActiveAgents: []string{"scout", "analyst"},
		PendingTasks: map[string]string{"scout": "review_deal_7", "analyst": "review_deal_7"},
	}

	found := svc.DetectConflicts(state, nil)
	if len(found) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(found))
	}

	outcome, err := svc.Resolve(&found[0], state)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !outcome.Resolved {
		t.Fatal("outcome not resolved")
	}
	if outcome.Strategy != conflict.StrategyPriorityBased {
		t.Fatalf("wrong strategy: %s", outcome.Strategy)
	}
	if outcome.Winner != "analyst" {
		t.Fatalf("expected analyst to win, got %s", outcome.Winner)
	}
	if _, still := state.PendingTasks["scout"]; still {
		t.Fatal("losing claim not dropped")
	}
	if _, kept := state.PendingTasks["analyst"]; !kept {
		t.Fatal("winning claim must survive")
	}
	if !found[0].Resolved {
		t.Fatal("conflict record not flagged resolved")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	svc := newConflictService()
	state := &workflow.State{
		WorkflowID:   "wf-1",
		ActiveAgents: []string{"scout", "analyst"},
		PendingTasks: map[string]string{"scout": "review_deal_7", "analyst": "review_deal_7"},
	}

	found := svc.DetectConflicts(state, nil)
	first, err := svc.Resolve(&found[0], state)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := svc.Resolve(&found[0], state)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second != first {
		t.Fatal("re-resolution must return the recorded outcome")
	}
}

func TestResolveDecisionConflict(t *testing.T) {
	svc := newConflictService()
	now := time.Now()
	recent := []decision.SupervisorDecision{
		{ID: "d-low", Type: decision.TypeRouteToAgent, TargetAgent: "analyst", Action: "analyze_deal",
			Priority: decision.PriorityLow, Confidence: 0.9, CreatedAt: now},
		{ID: "d-high", Type: decision.TypeRouteToAgent, TargetAgent: "analyst", Action: "re_analyze_deal",
			Priority: decision.PriorityHigh, Confidence: 0.9, CreatedAt: now},
	}

	found := svc.DetectConflicts(&workflow.State{WorkflowID: "wf-1"}, recent)
	if len(found) != 1 {
		t.Fatalf("expected 1 decision conflict, got %d", len(found))
	}
	if found[0].Type != conflict.TypeDecision {
		t.Fatalf("wrong type: %s", found[0].Type)
	}

	outcome, err := svc.Resolve(&found[0], &workflow.State{WorkflowID: "wf-1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if outcome.Winner != "d-high" {
		t.Fatalf("expected d-high to win, got %s", outcome.Winner)
	}
	if len(outcome.Discarded) != 1 || outcome.Discarded[0] != "d-low" {
		t.Fatalf("expected d-low discarded, got %v", outcome.Discarded)
	}
}

func TestExecutedDecisionsDoNotConflict(t *testing.T) {
	svc := newConflictService()
	recent := []decision.SupervisorDecision{
		{ID: "d1", TargetAgent: "analyst", Action: "analyze_deal", Executed: true},
		{ID: "d2", TargetAgent: "analyst", Action: "re_analyze_deal"},
	}

	if found := svc.DetectConflicts(&workflow.State{WorkflowID: "wf-1"}, recent); len(found) != 0 {
		t.Fatalf("executed decision raised a conflict: %+v", found)
	}
}

func TestResolveUnhandledConflictType(t *testing.T) {
	svc := newConflictService()
	c := conflict.Resolution{
		ConflictID: "c-1",
		Type:       conflict.Type("schedule_conflict"),
	}

	if _, err := svc.Resolve(&c, &workflow.State{}); !errors.Is(err, domain.ErrUnhandledConflictType) {
		t.Fatalf("expected unhandled conflict type error, got %v", err)
	}
	if c.Resolved {
		t.Fatal("failed resolution must leave the conflict unresolved")
	}
}

func TestResolvePreResolvedConflict(t *testing.T) {
	svc := newConflictService()
	c := conflict.Resolution{
		ConflictID:         "c-prior",
		Type:               conflict.TypeResource,
		Resolved:           true,
		ResolutionStrategy: conflict.StrategyPriorityBased,
		ActionsTaken:       []string{"Reallocated resources"},
	}

	outcome, err := svc.Resolve(&c, &workflow.State{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !outcome.Resolved || outcome.Strategy != conflict.StrategyPriorityBased {
		t.Fatalf("outcome not reconstructed: %+v", outcome)
	}
}
