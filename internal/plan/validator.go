package plan

import (
	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/types"
)

// Validate checks an accepted planner response against the capability
// catalog before execution begins.
//
// Rejections (all fatal for the run):
//   - nil plan or nil step list (the planner must return a list, even empty)
//   - duplicate step ids
//   - a step action absent from the catalog (a hallucinated capability)
//   - a dependency referencing a step id that does not exist in the plan
func Validate(p *Plan, catalog *capability.Registry) error {
	if p == nil {
		return types.NewError(types.PLAN_INVALID_STRUCTURE, "planner returned no plan")
	}
	if p.Steps == nil {
		return types.NewError(types.PLAN_INVALID_STRUCTURE, "planner response is missing the step list")
	}

	seen := make(map[int]struct{}, len(p.Steps))
	for _, step := range p.Steps {
		if _, dup := seen[step.ID]; dup {
			return types.NewErrorf(types.PLAN_INVALID_STRUCTURE, "duplicate step id %d", step.ID)
		}
		seen[step.ID] = struct{}{}

		if step.Action == "" {
			return types.NewErrorf(types.PLAN_INVALID_STRUCTURE, "step %d has no action", step.ID)
		}
		if !catalog.Has(step.Action) {
			return types.NewErrorf(types.PLAN_UNKNOWN_CAPABILITY,
				"step %d requests capability %q which is not in the catalog", step.ID, step.Action)
		}
	}

	for _, step := range p.Steps {
		for _, dep := range step.Dependencies {
			if _, ok := seen[dep]; !ok {
				return types.NewErrorf(types.PLAN_INVALID_STRUCTURE,
					"step %d depends on unknown step id %d", step.ID, dep)
			}
		}
	}

	return nil
}
