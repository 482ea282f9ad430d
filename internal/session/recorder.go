// Package session defines the session-recording collaborator that receives
// the final result and full step history after a run completes, plus an
// in-memory store implementation.
//
// Recording always happens on the background completion path, after the
// caller's blocking wait has already been released; a Recorder must never be
// invoked on the caller's critical path.
package session

import (
	"context"
	"time"

	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/plan"
	"github.com/steward-ai/steward/internal/types"
)

// Record is the persisted shape of one completed run.
type Record struct {
	RunID       types.ID                        `json:"run_id" yaml:"run_id"`
	Goal        string                          `json:"goal" yaml:"goal"`
	Status      string                          `json:"status" yaml:"status"`
	Message     string                          `json:"message" yaml:"message"`
	Details     map[string]any                  `json:"details,omitempty" yaml:"details,omitempty"`
	Artifacts   []string                        `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Steps       []plan.Step                     `json:"steps,omitempty" yaml:"steps,omitempty"`
	Results     map[int]*capability.StepResult  `json:"results,omitempty" yaml:"results,omitempty"`
	CompletedAt time.Time                       `json:"completed_at" yaml:"completed_at"`
}

// Recorder persists run records. Implementations must tolerate being called
// after the caller has already consumed the final result.
type Recorder interface {
	Record(ctx context.Context, record Record) error
}

// NopRecorder discards records. It is the default when the engine is
// constructed without a recorder.
type NopRecorder struct{}

// Record discards the record.
func (NopRecorder) Record(context.Context, Record) error { return nil }
