package config

import (
	"time"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			RunTimeout:   5 * time.Minute,
			PlanRequests: 2,
		},
		Escalation: EscalationConfig{
			RetryThreshold: 2,
			MinConfidence:  0.6,
			MaxPerRun:      2,
			MaxPerSession:  5,
		},
		Events: EventsConfig{
			BufferSize: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
		Session: SessionConfig{
			Enabled: true,
		},
	}
}
