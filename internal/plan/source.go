package plan

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/steward-ai/steward/internal/types"
)

// StaticPlanner returns a fixed response for every request. Useful for tests
// and for replaying a known-good plan.
type StaticPlanner struct {
	Response *Response
	Err      error
}

// Plan implements the Planner interface.
func (p *StaticPlanner) Plan(context.Context, Request) (*Response, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Response, nil
}

// planDocument is the on-disk YAML shape a FilePlanner reads.
type planDocument struct {
	Goal       string `yaml:"goal"`
	Impossible bool   `yaml:"impossible"`
	Reason     string `yaml:"reason"`
	Complexity string `yaml:"complexity"`
	Steps      []struct {
		ID             int            `yaml:"id"`
		Action         string         `yaml:"action"`
		Parameters     map[string]any `yaml:"parameters"`
		Dependencies   []int          `yaml:"dependencies"`
		Reasoning      string         `yaml:"reasoning"`
		ExpectedOutput string         `yaml:"expected_output"`
	} `yaml:"steps"`
}

// FilePlanner serves a plan loaded from a YAML document on disk. It stands
// in for the external planning service when running goals from the command
// line.
type FilePlanner struct {
	Path string
}

// Plan implements the Planner interface by reading and decoding the plan
// file on every request.
func (p *FilePlanner) Plan(_ context.Context, req Request) (*Response, error) {
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, types.WrapError(types.PLAN_REQUEST_FAILED, "failed to read plan file", err)
	}

	var doc planDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, types.WrapError(types.PLAN_INVALID_STRUCTURE, "failed to decode plan file", err)
	}

	if doc.Impossible {
		return &Response{Impossible: true, Reason: doc.Reason}, nil
	}

	goal := doc.Goal
	if goal == "" {
		goal = req.Goal
	}
	out := &Plan{Goal: goal, Steps: make([]Step, 0, len(doc.Steps)), Complexity: doc.Complexity}
	for _, s := range doc.Steps {
		out.Steps = append(out.Steps, Step{
			ID:             s.ID,
			Action:         s.Action,
			Parameters:     s.Parameters,
			Dependencies:   s.Dependencies,
			Rationale:      s.Reasoning,
			ExpectedOutput: s.ExpectedOutput,
		})
	}
	return &Response{Plan: out}, nil
}
