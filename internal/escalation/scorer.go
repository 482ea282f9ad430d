// Package escalation implements the feasibility scorer that decides whether a
// repeatedly-failing step should be diverted to an alternate, higher-cost
// execution path.
//
// Scoring is a pure function: identical inputs always produce identical
// output, and increasing the attempt count while holding the error history
// fixed never decreases the confidence. No LLM calls, no I/O.
package escalation

import (
	"fmt"
)

// Config holds the tunables for the escalation decision.
type Config struct {
	// AllowList restricts escalation to the named capabilities. An empty
	// list makes every capability eligible.
	AllowList []string

	// MaxPerRun caps how many escalations a single run may perform.
	MaxPerRun int

	// MaxPerSession caps how many escalations a session may perform across runs.
	MaxPerSession int

	// RetryThreshold is the minimum attempt count before escalation triggers.
	RetryThreshold int

	// MinConfidence is the minimum confidence score required to escalate.
	MinConfidence float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxPerRun:      2,
		MaxPerSession:  5,
		RetryThreshold: 2,
		MinConfidence:  0.6,
	}
}

// Usage tracks how often escalation has already been used.
type Usage struct {
	// RunCount is the number of escalations performed in the current run.
	RunCount int

	// SessionCount is the number of escalations performed in the session.
	SessionCount int
}

// Decision is the scorer's verdict for one capability.
type Decision struct {
	// Escalate reports whether the step should divert to the alternate path.
	Escalate bool

	// Confidence is the computed feasibility score.
	Confidence float64

	// Reason explains the verdict for logs and diagnostics.
	Reason string
}

// Scorer evaluates whether a failing capability invocation should escalate.
type Scorer struct {
	config Config
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(config Config) *Scorer {
	return &Scorer{config: config}
}

// Score evaluates escalation for a capability given its attempt count, its
// recent error history (bounded to the last 5 by the recovery coordinator),
// and the current escalation usage.
//
// Rules, in order:
//  1. The capability must be on the allow-list, unless the list is empty.
//  2. Usage caps: run and session counts must be below their maxima.
//  3. confidence = min(1.0, 0.25×max(0, attempts−1)) + min(0.4, 0.1×distinct(recentErrors))
//  4. Escalate when attempts ≥ RetryThreshold and confidence ≥ MinConfidence.
func (s *Scorer) Score(capabilityName string, attempts int, recentErrors []string, usage Usage) Decision {
	if !s.eligible(capabilityName) {
		return Decision{
			Reason: fmt.Sprintf("capability %q is not on the escalation allow-list", capabilityName),
		}
	}

	if usage.RunCount >= s.config.MaxPerRun {
		return Decision{
			Reason: fmt.Sprintf("per-run escalation cap reached (%d)", s.config.MaxPerRun),
		}
	}
	if usage.SessionCount >= s.config.MaxPerSession {
		return Decision{
			Reason: fmt.Sprintf("per-session escalation cap reached (%d)", s.config.MaxPerSession),
		}
	}

	confidence := confidenceScore(attempts, recentErrors)
	escalate := attempts >= s.config.RetryThreshold && confidence >= s.config.MinConfidence

	reason := fmt.Sprintf("attempts=%d distinct_errors=%d confidence=%.2f threshold=%d min_confidence=%.2f",
		attempts, distinct(recentErrors), confidence, s.config.RetryThreshold, s.config.MinConfidence)

	return Decision{
		Escalate:   escalate,
		Confidence: confidence,
		Reason:     reason,
	}
}

// eligible checks the allow-list. An empty allow-list admits every capability.
func (s *Scorer) eligible(capabilityName string) bool {
	if len(s.config.AllowList) == 0 {
		return true
	}
	for _, name := range s.config.AllowList {
		if name == capabilityName {
			return true
		}
	}
	return false
}

// confidenceScore computes the feasibility confidence. The attempt term
// saturates at 1.0 and the error-diversity term at 0.4, so confidence is
// monotone non-decreasing in both inputs.
func confidenceScore(attempts int, recentErrors []string) float64 {
	extraAttempts := attempts - 1
	if extraAttempts < 0 {
		extraAttempts = 0
	}

	attemptTerm := 0.25 * float64(extraAttempts)
	if attemptTerm > 1.0 {
		attemptTerm = 1.0
	}

	diversityTerm := 0.1 * float64(distinct(recentErrors))
	if diversityTerm > 0.4 {
		diversityTerm = 0.4
	}

	return attemptTerm + diversityTerm
}

// distinct counts unique error strings in the history.
func distinct(errors []string) int {
	seen := make(map[string]struct{}, len(errors))
	for _, e := range errors {
		seen[e] = struct{}{}
	}
	return len(seen)
}
