package engine

import (
	"fmt"

	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/plan"
)

// Readiness is the dependency gate's verdict for one step.
type Readiness struct {
	// Ready reports whether every dependency succeeded.
	Ready bool

	// FailedIDs lists dependencies that are missing from the results or
	// completed with an error, in declaration order.
	FailedIDs []int

	// RecoverableIDs is the subset of FailedIDs whose result carries a
	// classifier-supplied recoverability flag. Recorded for downstream
	// consumers; it does not unblock execution. Any failed dependency
	// causes a skip regardless of recoverability.
	RecoverableIDs []int
}

// evaluateReadiness decides whether a step's prerequisites are satisfied
// well enough to run it. A dependency missing from results counts as failed
// the same as one that completed with an error.
func evaluateReadiness(step plan.Step, results map[int]*capability.StepResult) Readiness {
	var readiness Readiness

	for _, dep := range step.Dependencies {
		result, ok := results[dep]
		if ok && result.Succeeded() {
			continue
		}
		readiness.FailedIDs = append(readiness.FailedIDs, dep)
		if ok && result.Recoverable() {
			readiness.RecoverableIDs = append(readiness.RecoverableIDs, dep)
		}
	}

	readiness.Ready = len(readiness.FailedIDs) == 0
	return readiness
}

// skipResult builds the synthetic StepResult written for a step skipped by
// the dependency gate. The capability is never invoked and the cursor
// advances past the step.
func skipResult(readiness Readiness) *capability.StepResult {
	message := fmt.Sprintf("Skipped due to failed dependencies: %v", readiness.FailedIDs)

	payload := map[string]any{
		capability.KindField:    capability.KindSkipped,
		capability.SkippedField: true,
		capability.MessageField: message,
	}
	if len(readiness.RecoverableIDs) > 0 {
		payload[capability.RecoverableDeps] = readiness.RecoverableIDs
	}

	return &capability.StepResult{
		Error:        true,
		ErrorType:    "dependency_error",
		ErrorMessage: message,
		Payload:      payload,
	}
}
