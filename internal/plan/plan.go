// Package plan defines the task plan data model, the planning service
// contract, plan validation against the capability catalog, the guard list
// for false impossibility verdicts, and the bounded auto-correction pass
// applied to accepted plans.
package plan

import (
	"context"

	"github.com/steward-ai/steward/internal/capability"
)

// Step is one unit of work in a plan. Steps are immutable once the plan is
// accepted: the engine resolves parameters into a copy at invocation time and
// never mutates a step in place.
type Step struct {
	// ID is unique within a run and is the anchor for $step<id>.<field>
	// references in later steps.
	ID int `json:"id"`

	// Action names the capability to invoke.
	Action string `json:"action"`

	// Parameters is a nested map of literals and cross-step references.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Dependencies lists the step ids that must succeed before this step runs.
	Dependencies []int `json:"dependencies,omitempty"`

	// Rationale is the planner's stated reason for including this step.
	Rationale string `json:"reasoning,omitempty"`

	// ExpectedOutput describes what the planner expects the step to produce.
	ExpectedOutput string `json:"expected_output,omitempty"`
}

// Plan is an ordered list of steps plus the goal it serves, as returned by
// the planning service.
type Plan struct {
	Goal       string `json:"goal"`
	Steps      []Step `json:"steps"`
	Complexity string `json:"complexity,omitempty"`
}

// StepByID returns the step with the given id, or nil.
func (p *Plan) StepByID(id int) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// MaxStepID returns the largest step id in the plan, or 0 for an empty plan.
func (p *Plan) MaxStepID() int {
	max := 0
	for _, s := range p.Steps {
		if s.ID > max {
			max = s.ID
		}
	}
	return max
}

// Request is the planning service request payload.
type Request struct {
	// Goal is the natural-language request to plan for.
	Goal string `json:"goal"`

	// Catalog lists the capabilities the plan may use.
	Catalog []capability.Descriptor `json:"capability_catalog"`

	// Context carries run-scoped context for the planner (prior failures,
	// session hints). Opaque to the engine.
	Context map[string]any `json:"context,omitempty"`
}

// Response is the planning service response payload. Exactly one of Plan or
// Impossible is meaningful: when Impossible is set the planner legitimately
// reports the task cannot be done and Reason explains why.
type Response struct {
	Plan       *Plan  `json:"plan,omitempty"`
	Impossible bool   `json:"impossible,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Planner is the external planning oracle that converts a goal into a Plan.
// Implementations own their response-repair retries; the engine treats any
// returned error as fatal for the run.
type Planner interface {
	Plan(ctx context.Context, req Request) (*Response, error)
}
