// Package workflow defines the shared AgentState aggregate that flows through
// the supervisor and its worker agents.
package workflow

import (
	"slices"
	"time"
)

// Status represents the lifecycle state of a workflow.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusError     Status = "error"
	StatusCompleted Status = "completed"
)

// Deal statuses observed by the supervisor. Deals move through more stages
// than these inside the worker agents; the supervisor only reacts to the
// ones below.
const (
	DealStatusNew       = "new"
	DealStatusAnalyzing = "analyzing"
	DealStatusApproved  = "approved"
	DealStatusRejected  = "rejected"
	DealStatusClosed    = "closed"
)

// Deal is the unit of business work flowing through pipeline stages.
type Deal struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	Analyzed          bool      `json:"analyzed"`
	OutreachInitiated bool      `json:"outreach_initiated"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Message is one agent-authored note on the workflow. Priority 4 and above
// signals an error condition.
type Message struct {
	Content   string    `json:"message"`
	Priority  int       `json:"priority"`
	AgentType string    `json:"agent_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPriority is the message priority threshold treated as an error signal.
const ErrorPriority = 4

// PendingDecision is an escalation waiting for a human response.
type PendingDecision struct {
	Reason    string         `json:"reason"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// State is the workflow state aggregate. One writer per workflow: concurrent
// external agents must serialize mutations per WorkflowID, and every
// mutation goes through an accessor.
type State struct {
	WorkflowID         string         `json:"workflow_id"`
	Status             Status         `json:"workflow_status"`
	CurrentDeals       []Deal         `json:"current_deals"`
	ActiveNegotiations []string       `json:"active_negotiations"`
	ActiveAgents       []string       `json:"active_agents"`
	AgentMessages      []Message      `json:"agent_messages"`
	PendingTasks       map[string]string `json:"pending_tasks,omitempty"`
	NextAction         string         `json:"next_action,omitempty"`
	NextAgent          string         `json:"next_agent,omitempty"`

	PendingHumanDecisions []PendingDecision `json:"pending_human_decisions,omitempty"`
	HumanApprovalRequired bool              `json:"human_approval_required"`

	// Opaque pass-through for worker agents; the supervisor never inspects these.
	MarketConditions   map[string]any `json:"market_conditions,omitempty"`
	InvestmentCriteria map[string]any `json:"investment_criteria,omitempty"`
}

// AppendMessage records a supervisor or agent note on the workflow.
func (s *State) AppendMessage(agentType, content string, priority int, at time.Time) {
	s.AgentMessages = append(s.AgentMessages, Message{
		Content:   content,
		Priority:  priority,
		AgentType: agentType,
		Timestamp: at,
	})
}

// StageNextAction stages the action the named agent should perform on the
// next tick. The supervisor never blocks on the agent picking it up.
func (s *State) StageNextAction(agent, action string) {
	s.NextAgent = agent
	s.NextAction = action
}

// ClearNextAction removes any staged action.
func (s *State) ClearNextAction() {
	s.NextAgent = ""
	s.NextAction = ""
}

// PushHumanDecision queues an escalation and flags the workflow as waiting
// for human approval.
func (s *State) PushHumanDecision(reason string, context map[string]any, at time.Time) {
	s.PendingHumanDecisions = append(s.PendingHumanDecisions, PendingDecision{
		Reason:    reason,
		Context:   context,
		CreatedAt: at,
	})
	s.HumanApprovalRequired = true
}

// DrainHumanDecisions empties the escalation queue and clears the approval
// flag, returning the drained decisions.
func (s *State) DrainHumanDecisions() []PendingDecision {
	drained := s.PendingHumanDecisions
	s.PendingHumanDecisions = nil
	s.HumanApprovalRequired = false
	return drained
}

// HasAgent reports whether the agent is currently active on this workflow.
func (s *State) HasAgent(agent string) bool {
	return slices.Contains(s.ActiveAgents, agent)
}

// UnanalyzedCount returns the number of deals still waiting for analysis.
// Closed deals are past the analysis stage regardless of their flag.
func (s *State) UnanalyzedCount() int {
	n := 0
	for i := range s.CurrentDeals {
		d := &s.CurrentDeals[i]
		if !d.Analyzed && d.Status != DealStatusClosed {
			n++
		}
	}
	return n
}

// ApprovedPendingOutreach returns deals approved but not yet contacted.
func (s *State) ApprovedPendingOutreach() []Deal {
	var out []Deal
	for i := range s.CurrentDeals {
		d := s.CurrentDeals[i]
		if d.Status == DealStatusApproved && !d.OutreachInitiated {
			out = append(out, d)
		}
	}
	return out
}

// AllDealsClosed reports whether every deal has reached a closed status.
// An empty pipeline is not considered closed.
func (s *State) AllDealsClosed() bool {
	if len(s.CurrentDeals) == 0 {
		return false
	}
	for i := range s.CurrentDeals {
		if s.CurrentDeals[i].Status != DealStatusClosed {
			return false
		}
	}
	return true
}

// HasErrorMessages reports whether any agent message is at or above the
// error priority threshold.
func (s *State) HasErrorMessages() bool {
	for i := range s.AgentMessages {
		if s.AgentMessages[i].Priority >= ErrorPriority {
			return true
		}
	}
	return false
}
