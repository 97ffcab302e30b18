// Package config provides hierarchical configuration loading for DealPilot.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the supervisor core.
type Config struct {
	Logging     Logging     `yaml:"logging"`
	Supervisor  Supervisor  `yaml:"supervisor"`
	Monitor     Monitor     `yaml:"monitor"`
	Conflict    Conflict    `yaml:"conflict"`
	Coordinator Coordinator `yaml:"coordinator"`
	Breaker     Breaker     `yaml:"breaker"`
	Cache       Cache       `yaml:"cache"`
	Telemetry   Telemetry   `yaml:"telemetry"`
}

// Supervisor holds decision engine configuration.
type Supervisor struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // Minimum rule confidence (default: 0.8)
	LowWaterMark        int     `yaml:"low_water_mark"`       // Deal count below which sourcing kicks in (default: 5)
}

// Monitor holds performance monitoring configuration.
type Monitor struct {
	StallThreshold time.Duration `yaml:"stall_threshold"` // In-flight deal age before bottleneck (default: 5m)
	HistorySize    int           `yaml:"history_size"`    // Decision ring buffer capacity (default: 50)
	RepeatWindow   int           `yaml:"repeat_window"`   // Recent decisions inspected for routing repetition (default: 6)
	RepeatLimit    int           `yaml:"repeat_limit"`    // Same-target count that triggers a recommendation (default: 5)
	SnapshotTTL    time.Duration `yaml:"snapshot_ttl"`    // Cached report snapshot lifetime (default: 10m)
}

// Conflict holds conflict resolution configuration. AgentPriorities is the
// externally configured priority table behind the priority_based strategy.
type Conflict struct {
	AgentPriorities map[string]int `yaml:"agent_priorities"`
}

// Coordinator holds coordination plan and executor configuration.
type Coordinator struct {
	MaxParallel int `yaml:"max_parallel"` // Max concurrent plan steps (default: 4)
}

// Breaker holds circuit breaker configuration for worker task calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Cache holds in-process cache configuration.
type Cache struct {
	MaxSizeMB int64 `yaml:"max_size_mb"`
}

// Telemetry holds OpenTelemetry metric exporter configuration.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Logging: Logging{
			Level:   "info",
			Service: "dealpilot-supervisor",
		},
		Supervisor: Supervisor{
			ConfidenceThreshold: 0.8,
			LowWaterMark:        5,
		},
		Monitor: Monitor{
			StallThreshold: 5 * time.Minute,
			HistorySize:    50,
			RepeatWindow:   6,
			RepeatLimit:    5,
			SnapshotTTL:    10 * time.Minute,
		},
		Conflict: Conflict{
			AgentPriorities: map[string]int{
				"analyst":    3,
				"negotiator": 2,
				"scout":      1,
			},
		},
		Coordinator: Coordinator{
			MaxParallel: 4,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Cache: Cache{
			MaxSizeMB: 32,
		},
		Telemetry: Telemetry{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}
