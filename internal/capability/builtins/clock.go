package builtins

import (
	"context"
	"time"

	"github.com/steward-ai/steward/internal/capability"
)

// ClockCapability reports the current time. Plans use it as a dependency for
// time-sensitive follow-up steps.
type ClockCapability struct {
	// now is swappable for tests.
	now func() time.Time
}

// NewClockCapability creates the clock.now capability.
func NewClockCapability() capability.Capability {
	return &ClockCapability{now: time.Now}
}

// Name returns the unique identifier for this capability.
func (c *ClockCapability) Name() string {
	return "clock.now"
}

// Description returns a human-readable description of what this capability does.
func (c *ClockCapability) Description() string {
	return "Report the current date and time. Output fields: 'iso' (RFC 3339), 'unix' (seconds), 'weekday'."
}

// ParameterSchema describes the accepted parameters.
func (c *ClockCapability) ParameterSchema() map[string]string {
	return map[string]string{
		"timezone": "string, optional: IANA timezone name, default local",
	}
}

// Invoke reads the clock. An unknown timezone falls back to local time
// rather than failing the step.
func (c *ClockCapability) Invoke(_ context.Context, params map[string]any) (*capability.StepResult, error) {
	t := c.now()
	if tz, ok := params["timezone"].(string); ok && tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			t = t.In(loc)
		}
	}

	return &capability.StepResult{
		Payload: map[string]any{
			"iso":     t.Format(time.RFC3339),
			"unix":    t.Unix(),
			"weekday": t.Weekday().String(),
		},
	}, nil
}
