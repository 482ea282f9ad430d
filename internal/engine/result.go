package engine

import (
	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/types"
)

// ResultStatus is the user-facing status of a completed run.
type ResultStatus string

const (
	ResultSuccess        ResultStatus = "success"
	ResultPartialSuccess ResultStatus = "partial_success"
	ResultError          ResultStatus = "error"
	ResultCancelled      ResultStatus = "cancelled"
)

// String returns the string representation of the result status.
func (s ResultStatus) String() string {
	return string(s)
}

// maxArtifacts bounds how many artifacts a FinalResult carries.
const maxArtifacts = 5

// FinalResult is the single user-facing result of a run. Exactly one is
// created per run by the finalizer, written once into the result capture
// box, and read any number of times. Message is never empty once captured.
type FinalResult struct {
	// RunID identifies the run this result belongs to.
	RunID types.ID `json:"run_id"`

	// Status is the terminal user-facing status.
	Status ResultStatus `json:"status"`

	// Message is the terminal reply. Guaranteed non-empty.
	Message string `json:"message"`

	// Details carries supplementary structured data: failure summaries,
	// unmet commitments, unresolved-reference diagnostics.
	Details map[string]any `json:"details,omitempty"`

	// Artifacts lists up to five artifact references (file paths, ids)
	// pulled from step payloads.
	Artifacts []string `json:"artifacts,omitempty"`

	// StepResults is the full per-step outcome map.
	StepResults map[int]*capability.StepResult `json:"step_results,omitempty"`
}
