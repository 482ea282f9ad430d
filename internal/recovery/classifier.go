// Package recovery wraps single capability invocations with a bounded,
// classifier-guided retry and keeps the per-capability recent-error history
// used by the escalation scorer.
package recovery

import (
	"context"
)

// ClassifyInput is everything the external error classifier receives about a
// failed invocation.
type ClassifyInput struct {
	// Capability is the name of the capability that failed.
	Capability string `json:"capability"`

	// Params are the resolved parameters the invocation ran with.
	Params map[string]any `json:"params,omitempty"`

	// ErrorType and ErrorMessage describe the failure.
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message"`

	// Attempt is the 1-based attempt number for this step.
	Attempt int `json:"attempt"`

	// Context carries run-scoped context (goal, prior errors). Opaque here.
	Context map[string]any `json:"context,omitempty"`
}

// Verdict is the classifier's assessment of a failure.
type Verdict struct {
	// RetryRecommended indicates a recovery retry is worth one attempt.
	RetryRecommended bool `json:"retry_recommended"`

	// SuggestedParameters, when non-empty, are merged over the original
	// parameters for the retry. Suggested values win on key collision.
	SuggestedParameters map[string]any `json:"suggested_parameters,omitempty"`

	// Recoverable indicates downstream steps depending on this one could
	// still be unblocked by a later fix. Recorded by the dependency gate.
	Recoverable bool `json:"is_recoverable"`
}

// Classifier is the external collaborator that inspects a failure and
// proposes a parameter patch. Classifier failures never abort a run: the
// coordinator degrades to recording the raw error.
type Classifier interface {
	Classify(ctx context.Context, input ClassifyInput) (*Verdict, error)
}
