// Package monitoring defines the performance monitoring report and the
// situation analysis consumed by the decision engine.
package monitoring

import "time"

// HealthStatus is the coarse system health level. Levels are ordered:
// healthy < degraded < critical.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
)

// rank orders health statuses from best to worst.
func (h HealthStatus) rank() int {
	switch h {
	case HealthDegraded:
		return 1
	case HealthCritical:
		return 2
	default:
		return 0
	}
}

// Worst returns the worse of two statuses. Within one evaluation pass the
// system health may only move toward critical, never back.
func (h HealthStatus) Worst(other HealthStatus) HealthStatus {
	if other.rank() > h.rank() {
		return other
	}
	return h
}

// SystemHealth is the health verdict plus the issues that produced it.
type SystemHealth struct {
	Status HealthStatus `json:"status"`
	Issues []string     `json:"issues,omitempty"`
}

// Report is the supervisor's performance monitoring singleton, refreshed
// every tick for the lifetime of the process.
type Report struct {
	SystemHealth    SystemHealth `json:"system_health"`
	Bottlenecks     []string     `json:"bottlenecks,omitempty"`
	Opportunities   []string     `json:"opportunities,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
	LastUpdate      time.Time    `json:"last_monitoring_update"`
}

// Analysis is the situation snapshot the façade derives from state before
// asking the decision engine for a routing decision.
type Analysis struct {
	SystemHealth     SystemHealth `json:"system_health"`
	DealCount        int          `json:"current_deals"`
	UnanalyzedDeals  int          `json:"unanalyzed_deals"`
	ApprovedPending  int          `json:"approved_pending_outreach"`
	NegotiationCount int          `json:"active_negotiations"`
	AllDealsClosed   bool         `json:"all_deals_closed"`
	Bottlenecks      []string     `json:"bottlenecks,omitempty"`
	Opportunities    []string     `json:"opportunities,omitempty"`
}
