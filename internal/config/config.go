// Package config defines the engine configuration surface and its
// file-based loader.
package config

import (
	"time"

	"github.com/steward-ai/steward/internal/escalation"
)

// Config is the root configuration for the steward engine.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Escalation EscalationConfig `mapstructure:"escalation" yaml:"escalation"`
	Events     EventsConfig     `mapstructure:"events" yaml:"events"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
}

// EngineConfig holds core run-loop tunables.
type EngineConfig struct {
	// RunTimeout bounds a whole run, planning included. Zero disables it.
	RunTimeout time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`

	// PlanRequests bounds planning requests per run, including the
	// re-request after a discarded impossibility verdict.
	PlanRequests int `mapstructure:"plan_requests" yaml:"plan_requests" validate:"min=1,max=5"`
}

// EscalationConfig tunes the escalation scorer.
type EscalationConfig struct {
	// AllowList restricts escalation to the named capabilities. Empty
	// makes every capability eligible.
	AllowList []string `mapstructure:"allow_list" yaml:"allow_list"`

	// RetryThreshold is the attempt count at which escalation is considered.
	RetryThreshold int `mapstructure:"retry_threshold" yaml:"retry_threshold" validate:"min=1"`

	// MinConfidence is the score an escalation decision must reach.
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence" validate:"min=0,max=1"`

	// MaxPerRun caps escalations within one run.
	MaxPerRun int `mapstructure:"max_per_run" yaml:"max_per_run" validate:"min=0"`

	// MaxPerSession caps escalations across the engine's lifetime.
	MaxPerSession int `mapstructure:"max_per_session" yaml:"max_per_session" validate:"min=0"`
}

// ScorerConfig converts the escalation section into the scorer's config.
func (c EscalationConfig) ScorerConfig() escalation.Config {
	return escalation.Config{
		AllowList:      c.AllowList,
		MaxPerRun:      c.MaxPerRun,
		MaxPerSession:  c.MaxPerSession,
		RetryThreshold: c.RetryThreshold,
		MinConfidence:  c.MinConfidence,
	}
}

// EventsConfig tunes the progress event bus.
type EventsConfig struct {
	// BufferSize is the per-subscriber channel buffer. A full buffer drops
	// events rather than blocking the run loop.
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size" validate:"min=1"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// SessionConfig configures session recording.
type SessionConfig struct {
	// Enabled toggles session recording.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ExportPath, when set, is where the session store is exported as YAML
	// on shutdown.
	ExportPath string `mapstructure:"export_path" yaml:"export_path"`
}
