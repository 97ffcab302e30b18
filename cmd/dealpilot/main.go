// Command dealpilot runs one supervision pass over a workflow state
// snapshot and prints the decision and monitoring report. It stands in for
// the hosting scheduler loop during development.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dealpilot/dealpilot/internal/adapter/hub"
	dpotel "github.com/dealpilot/dealpilot/internal/adapter/otel"
	"github.com/dealpilot/dealpilot/internal/adapter/ristretto"
	"github.com/dealpilot/dealpilot/internal/config"
	"github.com/dealpilot/dealpilot/internal/domain/workflow"
	"github.com/dealpilot/dealpilot/internal/logger"
	"github.com/dealpilot/dealpilot/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closer := logger.New(cfg.Logging)
	defer closer.Close()
	slog.SetDefault(log)

	ctx := context.Background()

	var metrics *dpotel.Metrics
	if cfg.Telemetry.Enabled {
		shutdown, err := dpotel.InitMeter(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() { _ = shutdown(ctx) }()

		metrics, err = dpotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	snapshots, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("snapshot cache: %w", err)
	}
	defer snapshots.Close()

	events := hub.NewHub()
	supervisor, err := service.NewSupervisor(cfg, events, snapshots, metrics)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	state, err := loadState(statePath())
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}

	d, err := supervisor.ProcessState(ctx, state)
	if err != nil {
		return fmt.Errorf("process state: %w", err)
	}

	out := map[string]any{
		"decision": d,
		"report":   supervisor.Monitor().Report(),
		"state":    state,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// statePath returns the snapshot path from argv, defaulting to state.yaml.
func statePath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	return "state.yaml"
}

// loadState reads a workflow state snapshot from a YAML file. The snapshot
// uses the same field names as the JSON wire form, so the YAML document is
// bridged through JSON.
func loadState(path string) (*workflow.State, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	bridged, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("bridge %s: %w", path, err)
	}

	var state workflow.State
	if err := json.Unmarshal(bridged, &state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if state.Status == "" {
		state.Status = workflow.StatusRunning
	}
	return &state, nil
}
