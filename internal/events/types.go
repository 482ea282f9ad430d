// Package events provides the progress event model and the in-process event
// bus that delivers run and step events to observers, independently of the
// blocking result wait.
package events

import (
	"time"

	"github.com/steward-ai/steward/internal/types"
)

// EventType identifies the category and nature of a progress event.
type EventType string

// Run lifecycle events.
const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"
	EventRunCancelled EventType = "run.cancelled"
)

// Step execution events.
const (
	EventStepStarted   EventType = "step.started"
	EventStepSucceeded EventType = "step.succeeded"
	EventStepFailed    EventType = "step.failed"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// Event is one progress event emitted by the execution engine.
//
// SequenceNumber is run-scoped and increases by exactly one per emitted
// event; consumers must discard any event whose sequence number is less than
// or equal to the highest one already processed, which tolerates duplicate
// or out-of-order delivery from the transport layer.
type Event struct {
	// Type identifies the category and nature of the event.
	Type EventType `json:"type"`

	// Timestamp records when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// RunID associates the event with a run.
	RunID types.ID `json:"run_id"`

	// SequenceNumber is the run-scoped monotone event counter.
	SequenceNumber int `json:"sequence_number"`

	// StepID is the step this event concerns (0 for run-level events).
	StepID int `json:"step_id,omitempty"`

	// Capability names the capability involved, when applicable.
	Capability string `json:"capability,omitempty"`

	// Error carries the failure description for failed events.
	Error string `json:"error,omitempty"`

	// CanRetry reports whether the failed step may still be retried.
	CanRetry bool `json:"can_retry,omitempty"`

	// OutputPreview is a short preview of a succeeded step's output.
	OutputPreview string `json:"output_preview,omitempty"`
}

// Filter defines criteria for filtering events in subscriptions. All fields
// use AND logic; empty fields act as wildcards.
type Filter struct {
	// Types filters by event types (empty = all types).
	Types []EventType

	// RunID filters by run (empty = all runs).
	RunID types.ID
}

// Matches determines if the given event matches this filter's criteria.
func (f *Filter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		matched := false
		for _, t := range f.Types {
			if event.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.RunID != "" && event.RunID != f.RunID {
		return false
	}

	return true
}
