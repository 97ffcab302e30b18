package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dealpilot/dealpilot/internal/config"
	"github.com/dealpilot/dealpilot/internal/domain"
	"github.com/dealpilot/dealpilot/internal/domain/decision"
	"github.com/dealpilot/dealpilot/internal/domain/monitoring"
	"github.com/dealpilot/dealpilot/internal/domain/workflow"
)

// Rule is one prioritized predicate in the decision catalog. Evaluate
// returns nil when the predicate does not hold.
type Rule struct {
	Name     string
	Priority int
	Evaluate func(state *workflow.State, analysis *monitoring.Analysis) *decision.Draft
}

// Rule priorities. Evaluation follows priority, not declaration order:
// a critical system fault preempts all business routing, and among routing
// rules analysis outranks negotiation outranks sourcing so the pipeline
// never sources more work than it can analyze. Ending a finished workflow
// outranks sourcing for the same reason.
const (
	priorityEscalate     = 100
	priorityRouteAnalyst = 90
	priorityRouteNegoti  = 80
	priorityEndWorkflow  = 75
	priorityRouteScout   = 70
)

// DecisionEngine evaluates the rule catalog and returns one decision per
// call. It is a pure function of (state, analysis): no side effects, no
// receiver mutation.
type DecisionEngine struct {
	rules     []Rule
	threshold float64
	now       func() time.Time
}

// NewDecisionEngine builds the engine with the standard rule catalog.
func NewDecisionEngine(cfg config.Supervisor) (*DecisionEngine, error) {
	return NewDecisionEngineWithRules(cfg, defaultCatalog(cfg.LowWaterMark))
}

// NewDecisionEngineWithRules builds the engine from an explicit catalog.
// The catalog is validated once and sorted by priority at construction.
func NewDecisionEngineWithRules(cfg config.Supervisor, rules []Rule) (*DecisionEngine, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("empty rule catalog: %w", domain.ErrConfiguration)
	}
	seen := make(map[string]bool, len(rules))
	for i := range rules {
		r := &rules[i]
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d has no name: %w", i, domain.ErrConfiguration)
		}
		if r.Evaluate == nil {
			return nil, fmt.Errorf("rule %s has no evaluate function: %w", r.Name, domain.ErrConfiguration)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate rule %s: %w", r.Name, domain.ErrConfiguration)
		}
		seen[r.Name] = true
	}

	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &DecisionEngine{
		rules:     sorted,
		threshold: cfg.ConfidenceThreshold,
		now:       time.Now,
	}, nil
}

// MakeDecision evaluates rules in priority order and returns the first
// draft whose confidence clears the threshold. If no rule qualifies it
// returns the default decision: route to scout at confidence 0.5, the
// least-risk continuation.
func (e *DecisionEngine) MakeDecision(state *workflow.State, analysis *monitoring.Analysis) (*decision.SupervisorDecision, error) {
	for i := range e.rules {
		draft := e.rules[i].Evaluate(state, analysis)
		if draft == nil || draft.Confidence < e.threshold {
			continue
		}
		return e.materialize(draft)
	}

	return e.materialize(&decision.Draft{
		Type:        decision.TypeRouteToAgent,
		TargetAgent: "scout",
		Action:      "find_new_deals",
		Reasoning:   "No rule cleared the confidence threshold; continuing with deal sourcing",
		Priority:    decision.PriorityLow,
		Confidence:  0.5,
	})
}

// materialize turns a draft into a validated SupervisorDecision record.
func (e *DecisionEngine) materialize(draft *decision.Draft) (*decision.SupervisorDecision, error) {
	d := &decision.SupervisorDecision{
		ID:          uuid.NewString(),
		Type:        draft.Type,
		TargetAgent: draft.TargetAgent,
		Action:      draft.Action,
		Reasoning:   draft.Reasoning,
		Priority:    draft.Priority,
		Confidence:  draft.Confidence,
		CreatedAt:   e.now(),
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("rule produced invalid decision: %w", err)
	}
	return d, nil
}

// defaultCatalog is the standard supervisor rule table.
func defaultCatalog(lowWaterMark int) []Rule {
	return []Rule{
		{
			Name:     "escalate_to_human",
			Priority: priorityEscalate,
			Evaluate: func(_ *workflow.State, analysis *monitoring.Analysis) *decision.Draft {
				if analysis.SystemHealth.Status != monitoring.HealthCritical {
					return nil
				}
				return &decision.Draft{
					Type:       decision.TypeEscalateToHuman,
					Action:     "manual_review",
					Reasoning:  fmt.Sprintf("System health critical: %s", joinIssues(analysis.SystemHealth.Issues)),
					Priority:   decision.PriorityCritical,
					Confidence: 1.0,
				}
			},
		},
		{
			Name:     "route_to_analyst",
			Priority: priorityRouteAnalyst,
			Evaluate: func(state *workflow.State, _ *monitoring.Analysis) *decision.Draft {
				n := state.UnanalyzedCount()
				if n == 0 {
					return nil
				}
				return &decision.Draft{
					Type:        decision.TypeRouteToAgent,
					TargetAgent: "analyst",
					Action:      "analyze_deal",
					Reasoning:   fmt.Sprintf("%d deal(s) awaiting analysis", n),
					Priority:    decision.PriorityHigh,
					Confidence:  0.95,
				}
			},
		},
		{
			Name:     "route_to_negotiator",
			Priority: priorityRouteNegoti,
			Evaluate: func(state *workflow.State, _ *monitoring.Analysis) *decision.Draft {
				ready := state.ApprovedPendingOutreach()
				if len(ready) == 0 {
					return nil
				}
				return &decision.Draft{
					Type:        decision.TypeRouteToAgent,
					TargetAgent: "negotiator",
					Action:      "initiate_outreach",
					Reasoning:   fmt.Sprintf("%d approved deal(s) ready for outreach", len(ready)),
					Priority:    decision.PriorityHigh,
					Confidence:  0.92,
				}
			},
		},
		{
			Name:     "end_workflow",
			Priority: priorityEndWorkflow,
			Evaluate: func(_ *workflow.State, analysis *monitoring.Analysis) *decision.Draft {
				if !analysis.AllDealsClosed || analysis.NegotiationCount > 0 {
					return nil
				}
				return &decision.Draft{
					Type:       decision.TypeEndWorkflow,
					Action:     "complete_workflow",
					Reasoning:  "All deals closed and no active negotiations",
					Priority:   decision.PriorityMedium,
					Confidence: 0.85,
				}
			},
		},
		{
			Name:     "route_to_scout",
			Priority: priorityRouteScout,
			Evaluate: func(_ *workflow.State, analysis *monitoring.Analysis) *decision.Draft {
				if analysis.DealCount >= lowWaterMark {
					return nil
				}
				return &decision.Draft{
					Type:        decision.TypeRouteToAgent,
					TargetAgent: "scout",
					Action:      "find_new_deals",
					Reasoning:   fmt.Sprintf("Pipeline below low water mark (%d of %d deals)", analysis.DealCount, lowWaterMark),
					Priority:    decision.PriorityMedium,
					Confidence:  0.90,
				}
			},
		},
	}
}

func joinIssues(issues []string) string {
	if len(issues) == 0 {
		return "no detail available"
	}
	out := issues[0]
	for _, issue := range issues[1:] {
		out += "; " + issue
	}
	return out
}
