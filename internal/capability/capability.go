// Package capability defines the invocation contract between the execution
// engine and the catalog of named capabilities, plus the registry that serves
// as the capability catalog during planning and execution.
package capability

import (
	"context"
)

// Payload envelope keys. Capability payloads are tagged envelopes: the "kind"
// field identifies the payload shape so downstream consumers (dependency gate,
// finalizer) never have to guess at an untyped bag.
const (
	// KindField is the envelope tag key present in structured payloads.
	KindField = "kind"

	// KindReply marks a payload as the designated user-facing reply.
	// The finalizer searches step results for this tag before synthesizing
	// its own terminal message.
	KindReply = "reply"

	// KindSkipped marks the synthetic result written for a step that was
	// skipped by the dependency gate.
	KindSkipped = "skipped"
)

// Well-known payload field names shared between capabilities and the engine.
const (
	MessageField      = "message"
	ArtifactsField    = "artifacts"
	RecoverableField  = "recoverable"
	SkippedField      = "skipped"
	RecoverableDeps   = "recoverable_dependencies"
)

// StepResult is the outcome of one capability invocation. Exactly one
// StepResult exists per step id in a run; a recovery retry overwrites the
// failed attempt's result rather than appending a second one.
type StepResult struct {
	// Error reports whether the invocation failed.
	Error bool `json:"error"`

	// ErrorType categorizes the failure (capability-specific taxonomy).
	ErrorType string `json:"error_type,omitempty"`

	// ErrorMessage is the human-readable failure description.
	ErrorMessage string `json:"error_message,omitempty"`

	// RetryPossible is the capability's own hint that retrying might help.
	// The recovery coordinator combines it with the classifier verdict.
	RetryPossible bool `json:"retry_possible,omitempty"`

	// Payload carries the capability-specific output envelope. For failed
	// steps it additionally carries the classifier's recoverability verdict
	// under RecoverableField.
	Payload map[string]any `json:"payload,omitempty"`
}

// Succeeded reports whether the step completed without error.
func (r *StepResult) Succeeded() bool {
	return r != nil && !r.Error
}

// Field returns a payload field value, or nil if the payload is absent or
// the field is missing.
func (r *StepResult) Field(name string) (any, bool) {
	if r == nil || r.Payload == nil {
		return nil, false
	}
	v, ok := r.Payload[name]
	return v, ok
}

// Recoverable reports whether a failed step carries a classifier-supplied
// recoverability flag in its payload.
func (r *StepResult) Recoverable() bool {
	v, ok := r.Field(RecoverableField)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// NewErrorResult builds a failed StepResult with the given type and message.
func NewErrorResult(errorType, message string) *StepResult {
	return &StepResult{
		Error:        true,
		ErrorType:    errorType,
		ErrorMessage: message,
		Payload:      map[string]any{},
	}
}

// Capability represents a named operation the engine can invoke as a step.
// Implementations must be safe for sequential reuse across runs; the engine
// never invokes the same capability concurrently within a run.
type Capability interface {
	// Name returns the unique identifier for this capability.
	Name() string

	// Description returns a human-readable description of what this capability does.
	Description() string

	// ParameterSchema describes the accepted parameters, keyed by parameter
	// name. The planner receives this schema as part of the catalog.
	ParameterSchema() map[string]string

	// Invoke runs the capability with fully resolved parameters. It must
	// report failures through the returned StepResult rather than the error
	// return; a non-nil error is reserved for infrastructure faults and is
	// converted to a failed StepResult at the loop boundary.
	Invoke(ctx context.Context, params map[string]any) (*StepResult, error)
}

// Descriptor is the catalog entry handed to the planning service.
type Descriptor struct {
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	ParameterSchema map[string]string `json:"parameter_schema,omitempty"`
}
