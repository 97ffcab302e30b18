// Package otel provides OpenTelemetry metric instruments for the supervisor.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "dealpilot"

// Metrics holds all supervisor metric instruments.
type Metrics struct {
	DecisionsMade     metric.Int64Counter
	Escalations       metric.Int64Counter
	ConflictsDetected metric.Int64Counter
	ConflictsResolved metric.Int64Counter
	TickDuration      metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.DecisionsMade, err = meter.Int64Counter("dealpilot.decisions.made",
		metric.WithDescription("Number of supervisor decisions made"))
	if err != nil {
		return nil, err
	}

	m.Escalations, err = meter.Int64Counter("dealpilot.escalations",
		metric.WithDescription("Number of human escalations raised"))
	if err != nil {
		return nil, err
	}

	m.ConflictsDetected, err = meter.Int64Counter("dealpilot.conflicts.detected",
		metric.WithDescription("Number of agent conflicts detected"))
	if err != nil {
		return nil, err
	}

	m.ConflictsResolved, err = meter.Int64Counter("dealpilot.conflicts.resolved",
		metric.WithDescription("Number of agent conflicts resolved"))
	if err != nil {
		return nil, err
	}

	m.TickDuration, err = meter.Float64Histogram("dealpilot.tick.duration_seconds",
		metric.WithDescription("ProcessState pass duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
