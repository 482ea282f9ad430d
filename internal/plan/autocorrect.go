package plan

import (
	"fmt"
	"strings"

	"github.com/steward-ai/steward/internal/capability"
)

// AutoCorrect applies a bounded, fixed set of known bad-pattern fixes to an
// accepted plan before execution begins. Corrections never remove steps:
// they only patch parameters or append a single verification step
// immediately after a matched trigger step.
//
// Returns a description of each correction applied, for logging.
func AutoCorrect(p *Plan, catalog *capability.Registry) []string {
	var applied []string

	applied = append(applied, patchSendBodyReferences(p)...)
	applied = append(applied, appendVerificationSteps(p, catalog)...)

	return applied
}

// patchSendBodyReferences fixes the most common planner mistake: a send-type
// step whose body parameter is missing or empty while an earlier step
// composed the content. The body is patched to reference the most recent
// composing step's text output.
func patchSendBodyReferences(p *Plan) []string {
	var applied []string

	for i := range p.Steps {
		step := &p.Steps[i]
		if !isSendAction(step.Action) {
			continue
		}
		if body, ok := step.Parameters["body"]; ok {
			if s, isString := body.(string); !isString || s != "" {
				continue
			}
		}

		// Most recent earlier step that produces text.
		source := 0
		for j := 0; j < i; j++ {
			if isComposeAction(p.Steps[j].Action) {
				source = p.Steps[j].ID
			}
		}
		if source == 0 {
			continue
		}

		if step.Parameters == nil {
			step.Parameters = make(map[string]any)
		}
		ref := fmt.Sprintf("$step%d.text", source)
		step.Parameters["body"] = ref
		applied = append(applied,
			fmt.Sprintf("step %d (%s): patched missing body to %s", step.ID, step.Action, ref))
	}

	return applied
}

// verificationFollowUps maps trigger actions to the verification capability
// appended after them when the planner omitted it and the catalog has it.
var verificationFollowUps = map[string]string{
	"message.send": "message.verify_delivery",
	"file.write":   "file.verify",
}

// appendVerificationSteps appends one verification step immediately after
// each matched trigger step that is not already followed by one.
func appendVerificationSteps(p *Plan, catalog *capability.Registry) []string {
	var applied []string
	nextID := p.MaxStepID() + 1

	for i := 0; i < len(p.Steps); i++ {
		trigger := p.Steps[i]
		verifier, ok := verificationFollowUps[trigger.Action]
		if !ok || !catalog.Has(verifier) {
			continue
		}
		if i+1 < len(p.Steps) && p.Steps[i+1].Action == verifier {
			continue
		}

		verification := Step{
			ID:           nextID,
			Action:       verifier,
			Parameters:   map[string]any{},
			Dependencies: []int{trigger.ID},
			Rationale:    fmt.Sprintf("verify the outcome of step %d (%s)", trigger.ID, trigger.Action),
		}
		nextID++

		// Insert immediately after the trigger step.
		p.Steps = append(p.Steps[:i+1], append([]Step{verification}, p.Steps[i+1:]...)...)
		applied = append(applied,
			fmt.Sprintf("appended %s after step %d (%s)", verifier, trigger.ID, trigger.Action))
		i++ // Skip over the step we just inserted.
	}

	return applied
}

func isSendAction(action string) bool {
	return strings.HasSuffix(action, ".send") || strings.Contains(action, "send_")
}

func isComposeAction(action string) bool {
	return strings.Contains(action, "compose") || strings.Contains(action, "draft")
}
