package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dealpilot/dealpilot/internal/domain"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "dealpilot.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Logging.Level, "DEALPILOT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "DEALPILOT_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "DEALPILOT_LOG_ASYNC")
	setFloat64(&cfg.Supervisor.ConfidenceThreshold, "DEALPILOT_CONFIDENCE_THRESHOLD")
	setInt(&cfg.Supervisor.LowWaterMark, "DEALPILOT_LOW_WATER_MARK")
	setDuration(&cfg.Monitor.StallThreshold, "DEALPILOT_STALL_THRESHOLD")
	setInt(&cfg.Monitor.HistorySize, "DEALPILOT_HISTORY_SIZE")
	setInt(&cfg.Monitor.RepeatWindow, "DEALPILOT_REPEAT_WINDOW")
	setInt(&cfg.Monitor.RepeatLimit, "DEALPILOT_REPEAT_LIMIT")
	setDuration(&cfg.Monitor.SnapshotTTL, "DEALPILOT_SNAPSHOT_TTL")
	setInt(&cfg.Coordinator.MaxParallel, "DEALPILOT_MAX_PARALLEL")
	setInt(&cfg.Breaker.MaxFailures, "DEALPILOT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "DEALPILOT_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "DEALPILOT_CACHE_SIZE_MB")
	setBool(&cfg.Telemetry.Enabled, "DEALPILOT_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "DEALPILOT_TELEMETRY_ENDPOINT")
}

// validate checks config invariants after all overlays are applied.
// Every violation wraps ErrConfiguration so callers can classify it.
func validate(cfg *Config) error {
	if cfg.Supervisor.ConfidenceThreshold < 0 || cfg.Supervisor.ConfidenceThreshold > 1 {
		return fmt.Errorf("supervisor.confidence_threshold must be in [0,1], got %v: %w", cfg.Supervisor.ConfidenceThreshold, domain.ErrConfiguration)
	}
	if cfg.Supervisor.LowWaterMark < 0 {
		return fmt.Errorf("supervisor.low_water_mark must be >= 0, got %d: %w", cfg.Supervisor.LowWaterMark, domain.ErrConfiguration)
	}
	if cfg.Monitor.HistorySize <= 0 {
		return fmt.Errorf("monitor.history_size must be > 0, got %d: %w", cfg.Monitor.HistorySize, domain.ErrConfiguration)
	}
	if cfg.Monitor.RepeatLimit > cfg.Monitor.RepeatWindow {
		return fmt.Errorf("monitor.repeat_limit %d exceeds repeat_window %d: %w", cfg.Monitor.RepeatLimit, cfg.Monitor.RepeatWindow, domain.ErrConfiguration)
	}
	if cfg.Coordinator.MaxParallel <= 0 {
		return fmt.Errorf("coordinator.max_parallel must be > 0, got %d: %w", cfg.Coordinator.MaxParallel, domain.ErrConfiguration)
	}
	for agent, prio := range cfg.Conflict.AgentPriorities {
		if prio < 0 {
			return fmt.Errorf("conflict.agent_priorities[%s] must be >= 0, got %d: %w", agent, prio, domain.ErrConfiguration)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
