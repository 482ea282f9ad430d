package engine

import (
	"strings"

	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/plan"
)

// Commitment is a capability-independent semantic promise implied by the
// request: "a message will be delivered", "a document will be attached",
// "media will be played". The finalizer verifies each inferred commitment
// against which capabilities actually ran without error; an unmet commitment
// downgrades success to partial_success with an explanatory note.
type Commitment struct {
	// Name identifies the commitment in notes and details.
	Name string

	// Keywords trigger inference when found in the goal text.
	Keywords []string

	// CapabilityPrefixes are the capability-name prefixes whose successful
	// execution honors the commitment.
	CapabilityPrefixes []string

	// Note is the explanation appended when the commitment goes unmet.
	Note string
}

// defaultCommitments is the built-in commitment table.
var defaultCommitments = []Commitment{
	{
		Name:               "message_delivery",
		Keywords:           []string{"send", "message", "text", "email", "remind"},
		CapabilityPrefixes: []string{"message.", "mail."},
		Note:               "the request implied a message would be delivered, but no message capability completed",
	},
	{
		Name:               "attachment",
		Keywords:           []string{"attach", "document", "file"},
		CapabilityPrefixes: []string{"message.attach", "file."},
		Note:               "the request implied a document would be attached, but no attachment capability completed",
	},
	{
		Name:               "media_playback",
		Keywords:           []string{"play", "music", "song"},
		CapabilityPrefixes: []string{"media."},
		Note:               "the request implied media would be played, but no media capability completed",
	},
}

// inferCommitments returns the commitments implied by the goal text.
func inferCommitments(goal string) []Commitment {
	lowered := strings.ToLower(goal)

	var inferred []Commitment
	for _, c := range defaultCommitments {
		for _, keyword := range c.Keywords {
			if strings.Contains(lowered, keyword) {
				inferred = append(inferred, c)
				break
			}
		}
	}
	return inferred
}

// honored reports whether any step matching the commitment's capability
// prefixes ran without error.
func (c Commitment) honored(steps []plan.Step, results map[int]*capability.StepResult) bool {
	for _, step := range steps {
		if !c.matchesAction(step.Action) {
			continue
		}
		if result, ok := results[step.ID]; ok && result.Succeeded() {
			return true
		}
	}
	return false
}

func (c Commitment) matchesAction(action string) bool {
	for _, prefix := range c.CapabilityPrefixes {
		if strings.HasPrefix(action, prefix) {
			return true
		}
	}
	return false
}

// unmetCommitments returns the notes for every inferred commitment that was
// not honored by a successful capability execution.
func unmetCommitments(goal string, steps []plan.Step, results map[int]*capability.StepResult) []string {
	var notes []string
	for _, c := range inferCommitments(goal) {
		if !c.honored(steps, results) {
			notes = append(notes, c.Note)
		}
	}
	return notes
}
