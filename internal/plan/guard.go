package plan

import (
	"strings"

	"github.com/steward-ai/steward/internal/capability"
)

// GuardPattern describes a known false-negative impossibility verdict: a
// request shape planners commonly misjudge as impossible even though the
// named capabilities, used together, satisfy it.
type GuardPattern struct {
	// Name identifies the pattern in logs.
	Name string

	// Capabilities are the capability names that together satisfy the
	// misjudged request. The pattern only fires when every one of them is
	// actually present in the catalog.
	Capabilities []string
}

// DefaultGuardPatterns returns the built-in guard list. Each entry pairs
// capabilities that planners have been observed to incorrectly report
// missing in combination.
func DefaultGuardPatterns() []GuardPattern {
	return []GuardPattern{
		{
			Name:         "compose-then-send",
			Capabilities: []string{"message.compose", "message.send"},
		},
		{
			Name:         "capture-then-attach",
			Capabilities: []string{"screen.capture", "message.attach"},
		},
		{
			Name:         "lookup-then-respond",
			Capabilities: []string{"calendar.read", "respond"},
		},
	}
}

// CheckImpossibility decides whether an impossibility verdict should be
// discarded. It returns the matched pattern name and true when a guard
// pattern fires: every pattern capability exists in the catalog and the
// planner's stated reason mentions at least one of them. In that case the
// verdict is a known false negative and planning should be re-requested
// instead of failing the run.
func CheckImpossibility(reason string, catalog *capability.Registry, patterns []GuardPattern) (string, bool) {
	lowered := strings.ToLower(reason)

	for _, pattern := range patterns {
		allPresent := true
		mentioned := false
		for _, name := range pattern.Capabilities {
			if !catalog.Has(name) {
				allPresent = false
				break
			}
			if strings.Contains(lowered, strings.ToLower(name)) {
				mentioned = true
			}
		}
		if allPresent && mentioned {
			return pattern.Name, true
		}
	}

	return "", false
}
