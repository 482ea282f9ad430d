package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/types"
)

// stubCapability is a no-op catalog entry for plan-level tests.
type stubCapability struct {
	name string
}

func (s stubCapability) Name() string { return s.name }
func (s stubCapability) Description() string { return "stub" }
func (s stubCapability) ParameterSchema() map[string]string { return nil }

func (s stubCapability) Invoke(context.Context, map[string]any) (*capability.StepResult, error) {
	return &capability.StepResult{}, nil
}

func newCatalog(t *testing.T, names ...string) *capability.Registry {
	t.Helper()
	catalog := capability.NewRegistry()
	for _, name := range names {
		catalog.Register(stubCapability{name: name})
	}
	return catalog
}

func errorCode(err error) types.ErrorCode {
	var engineErr *types.EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Code
	}
	return ""
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	catalog := newCatalog(t, "message.compose", "message.send")

	p := &Plan{
		Goal: "send a note",
		Steps: []Step{
			{ID: 1, Action: "message.compose", Parameters: map[string]any{"topic": "lunch"}},
			{ID: 2, Action: "message.send", Dependencies: []int{1}},
		},
	}

	assert.NoError(t, Validate(p, catalog))
}

func TestValidateAcceptsEmptyStepList(t *testing.T) {
	catalog := newCatalog(t)

	p := &Plan{Goal: "nothing to do", Steps: []Step{}}

	assert.NoError(t, Validate(p, catalog))
}

func TestValidateRejections(t *testing.T) {
	catalog := newCatalog(t, "message.send")

	tests := []struct {
		name string
		plan *Plan
		code types.ErrorCode
	}{
		{
			name: "nil plan",
			plan: nil,
			code: types.PLAN_INVALID_STRUCTURE,
		},
		{
			name: "nil step list",
			plan: &Plan{Goal: "g"},
			code: types.PLAN_INVALID_STRUCTURE,
		},
		{
			name: "duplicate step ids",
			plan: &Plan{Steps: []Step{
				{ID: 1, Action: "message.send"},
				{ID: 1, Action: "message.send"},
			}},
			code: types.PLAN_INVALID_STRUCTURE,
		},
		{
			name: "empty action",
			plan: &Plan{Steps: []Step{{ID: 1}}},
			code: types.PLAN_INVALID_STRUCTURE,
		},
		{
			name: "hallucinated capability",
			plan: &Plan{Steps: []Step{{ID: 1, Action: "teleport.user"}}},
			code: types.PLAN_UNKNOWN_CAPABILITY,
		},
		{
			name: "dependency on unknown step",
			plan: &Plan{Steps: []Step{
				{ID: 1, Action: "message.send", Dependencies: []int{7}},
			}},
			code: types.PLAN_INVALID_STRUCTURE,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.plan, catalog)
			require.Error(t, err)
			assert.Equal(t, tt.code, errorCode(err))
		})
	}
}

func TestValidateForwardDependencyIsAllowed(t *testing.T) {
	// Dependencies must reference ids that exist in the plan; declaration
	// order is the execution order regardless.
	catalog := newCatalog(t, "message.send")

	p := &Plan{Steps: []Step{
		{ID: 2, Action: "message.send", Dependencies: []int{1}},
		{ID: 1, Action: "message.send"},
	}}

	assert.NoError(t, Validate(p, catalog))
}
