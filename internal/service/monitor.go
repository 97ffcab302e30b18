package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dealpilot/dealpilot/internal/config"
	"github.com/dealpilot/dealpilot/internal/domain/decision"
	"github.com/dealpilot/dealpilot/internal/domain/monitoring"
	"github.com/dealpilot/dealpilot/internal/domain/workflow"
	"github.com/dealpilot/dealpilot/internal/port/cache"
)

// MonitorService derives system health, bottlenecks, opportunities, and
// recommendations from state and decision history. The report is a
// singleton per supervisor, refreshed every tick and never deleted for the
// lifetime of the process.
type MonitorService struct {
	cfg       config.Monitor
	snapshots cache.Cache // optional; report snapshots for read-availability

	mu      sync.Mutex
	report  monitoring.Report
	history *decisionRing
	now     func() time.Time
}

// NewMonitorService creates a MonitorService. snapshots may be nil when
// caching is disabled.
func NewMonitorService(cfg config.Monitor, snapshots cache.Cache) *MonitorService {
	return &MonitorService{
		cfg:       cfg,
		snapshots: snapshots,
		history:   newDecisionRing(cfg.HistorySize),
		now:       time.Now,
	}
}

// Update recomputes the monitoring report from the current state. The
// health status for one pass is the worst level found during that pass;
// it is never downgraded mid-pass.
func (s *MonitorService) Update(ctx context.Context, state *workflow.State) monitoring.Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.report = monitoring.Report{
		SystemHealth:    s.evaluateHealth(state),
		Bottlenecks:     s.identifyBottlenecks(state),
		Opportunities:   s.identifyOpportunities(state),
		Recommendations: s.generateRecommendations(),
		LastUpdate:      s.now(),
	}

	s.publishSnapshot(ctx, state.WorkflowID)
	return s.report
}

// evaluateHealth maps workflow status and message priorities onto a health
// verdict: running and clean is healthy, any error-priority message
// degrades, a workflow in error state is critical.
func (s *MonitorService) evaluateHealth(state *workflow.State) monitoring.SystemHealth {
	status := monitoring.HealthHealthy
	var issues []string

	for i := range state.AgentMessages {
		m := &state.AgentMessages[i]
		if m.Priority >= workflow.ErrorPriority {
			status = status.Worst(monitoring.HealthDegraded)
			issues = append(issues, fmt.Sprintf("%s: %s", m.AgentType, m.Content))
		}
	}

	if state.Status == workflow.StatusError {
		status = status.Worst(monitoring.HealthCritical)
		issues = append(issues, "workflow in error state")
	}

	return monitoring.SystemHealth{Status: status, Issues: issues}
}

// identifyBottlenecks flags in-flight deals that have not moved past the
// stall threshold.
func (s *MonitorService) identifyBottlenecks(state *workflow.State) []string {
	cutoff := s.now().Add(-s.cfg.StallThreshold)
	var out []string
	for i := range state.CurrentDeals {
		d := &state.CurrentDeals[i]
		if d.Status == workflow.DealStatusAnalyzing && d.LastUpdated.Before(cutoff) {
			out = append(out, fmt.Sprintf("Analysis bottleneck: deal %s stalled", d.ID))
		}
	}
	return out
}

// identifyOpportunities flags approved deals whose outreach has not started.
func (s *MonitorService) identifyOpportunities(state *workflow.State) []string {
	var out []string
	for _, d := range state.ApprovedPendingOutreach() {
		out = append(out, fmt.Sprintf("Outreach opportunity: deal %s ready for contact", d.ID))
	}
	return out
}

// generateRecommendations inspects the decision history for routing
// oscillation or starvation: the same target agent dominating the recent
// window suggests the rule thresholds need review.
func (s *MonitorService) generateRecommendations() []string {
	recent := s.history.last(s.cfg.RepeatWindow)
	if len(recent) < s.cfg.RepeatLimit {
		return nil
	}

	counts := make(map[string]int)
	for i := range recent {
		if recent[i].TargetAgent != "" {
			counts[recent[i].TargetAgent]++
		}
	}

	var out []string
	for agent, n := range counts {
		if n >= s.cfg.RepeatLimit {
			out = append(out, fmt.Sprintf(
				"Agent %s received %d of the last %d decisions; review rule thresholds",
				agent, n, len(recent)))
		}
	}
	return out
}

// Record appends a decision to the bounded history ring. The ring keeps
// the live record so execution marks land in history.
func (s *MonitorService) Record(d *decision.SupervisorDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.push(d)
}

// RecentDecisions returns up to n most recent decisions, oldest first.
func (s *MonitorService) RecentDecisions(n int) []decision.SupervisorDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.last(n)
}

// Report returns a copy of the current monitoring report. Reads stay
// available regardless of the workflow's escalation status.
func (s *MonitorService) Report() monitoring.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// BuildAnalysis derives the situation analysis the decision engine consumes.
func (s *MonitorService) BuildAnalysis(state *workflow.State) *monitoring.Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &monitoring.Analysis{
		SystemHealth:     s.evaluateHealth(state),
		DealCount:        len(state.CurrentDeals),
		UnanalyzedDeals:  state.UnanalyzedCount(),
		ApprovedPending:  len(state.ApprovedPendingOutreach()),
		NegotiationCount: len(state.ActiveNegotiations),
		AllDealsClosed:   state.AllDealsClosed(),
		Bottlenecks:      s.identifyBottlenecks(state),
		Opportunities:    s.identifyOpportunities(state),
	}
}

// publishSnapshot writes the current report to the snapshot cache so
// monitoring reads survive supervisor escalation. Called with s.mu held.
func (s *MonitorService) publishSnapshot(ctx context.Context, workflowID string) {
	if s.snapshots == nil {
		return
	}
	data, err := json.Marshal(s.report)
	if err != nil {
		slog.Error("marshal monitoring snapshot", "workflow_id", workflowID, "error", err)
		return
	}
	if err := s.snapshots.Set(ctx, snapshotKey(workflowID), data, s.cfg.SnapshotTTL); err != nil {
		slog.Warn("publish monitoring snapshot", "workflow_id", workflowID, "error", err)
	}
}

// CachedReport reads the last published report snapshot for a workflow.
func (s *MonitorService) CachedReport(ctx context.Context, workflowID string) (*monitoring.Report, bool) {
	if s.snapshots == nil {
		return nil, false
	}
	data, found, err := s.snapshots.Get(ctx, snapshotKey(workflowID))
	if err != nil || !found {
		return nil, false
	}
	var report monitoring.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false
	}
	return &report, true
}

// Reset clears the report and decision history between workflow runs.
func (s *MonitorService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = monitoring.Report{}
	s.history.reset()
}

func snapshotKey(workflowID string) string {
	return "monitoring:" + workflowID
}
