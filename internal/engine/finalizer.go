package engine

import (
	"fmt"
	"strings"

	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/template"
)

// minimalMessageLength is the threshold below which a terminal message is
// considered trivially short and replaced with the guaranteed fallback.
const minimalMessageLength = 3

// finalize builds the single FinalResult for the run. It guarantees a
// non-empty message in every terminal state; the last-resort fallback in
// step 4 cannot itself fail.
//
// Order of operations, per the finalization contract:
//  1. Error/Cancelled statuses are preserved verbatim, no further synthesis.
//  2. Commitments implied by the request are verified; unmet ones downgrade
//     success to partial_success with an explanatory note.
//  3. The step results are searched for a payload tagged as the user-facing
//     reply; absent that, a narrative is synthesized.
//  4. A still-empty or trivially short message is replaced with the
//     guaranteed fallback naming the failed capabilities.
//  5. Leftover unresolved reference syntax in the message or details is
//     surfaced as a diagnostic, with no attempt at auto-repair.
func (e *Engine) finalize(state *ExecutionState) *FinalResult {
	final := &FinalResult{
		RunID:       state.RunID,
		StepResults: state.Results,
		Details:     make(map[string]any),
	}

	switch state.Status {
	case StatusError:
		final.Status = ResultError
		if state.terminalErr != nil {
			final.Message = state.terminalErr.Error()
			final.Details["error"] = state.terminalErr.Error()
		} else {
			final.Message = "the run failed before producing a result"
		}

	case StatusCancelled:
		final.Status = ResultCancelled
		reason := state.cancelReason
		if reason == "" {
			reason = "cancellation was requested"
		}
		final.Message = fmt.Sprintf("Run cancelled: %s", reason)
		final.Details["cancel_reason"] = reason

	default:
		e.finalizeCompleted(state, final)
	}

	if len(strings.TrimSpace(final.Message)) < minimalMessageLength {
		final.Message = fallbackMessage(state)
	}

	if diagnostics := unresolvedDiagnostics(final); len(diagnostics) > 0 {
		final.Details["unresolved_references"] = diagnostics
	}

	if len(final.Details) == 0 {
		final.Details = nil
	}
	return final
}

// finalizeCompleted handles the Completed terminal state: status grading,
// commitment verification, reply selection, and artifact collection.
func (e *Engine) finalizeCompleted(state *ExecutionState, final *FinalResult) {
	status := ResultSuccess

	failed := state.failedSteps()
	if len(failed) > 0 {
		if len(state.succeededSteps()) == 0 {
			status = ResultError
		} else {
			status = ResultPartialSuccess
		}
		final.Details["failure_details"] = failureSummaries(state, failed)
	}

	if notes := unmetCommitments(state.Goal, state.Steps, state.Results); len(notes) > 0 {
		if status == ResultSuccess {
			status = ResultPartialSuccess
		}
		final.Details["unmet_commitments"] = notes
	}

	final.Status = status
	final.Message = e.terminalReply(state)
	final.Artifacts = collectArtifacts(state)
}

// terminalReply returns the user-facing reply: the last payload explicitly
// tagged as a reply, or a synthesized narrative when none exists.
func (e *Engine) terminalReply(state *ExecutionState) string {
	var reply string
	for _, step := range state.Steps {
		result, ok := state.Results[step.ID]
		if !ok || !result.Succeeded() {
			continue
		}
		kind, _ := result.Field(capability.KindField)
		if kind != capability.KindReply {
			continue
		}
		if message, ok := result.Field(capability.MessageField); ok {
			if s, isString := message.(string); isString && s != "" {
				reply = s
			}
		}
	}
	if reply != "" {
		return reply
	}

	return synthesizeNarrative(state)
}

// synthesizeNarrative builds a reply from step outcomes when no capability
// produced an explicit one.
func synthesizeNarrative(state *ExecutionState) string {
	if len(state.Steps) == 0 {
		return "The request completed without requiring any steps."
	}

	succeeded := state.succeededSteps()
	failed := state.failedSteps()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Completed %d of %d steps.", len(succeeded), len(state.Steps))

	if len(succeeded) > 0 {
		sb.WriteString(" Succeeded: ")
		sb.WriteString(strings.Join(stepLabels(state, succeeded), ", "))
		sb.WriteString(".")
	}
	if len(failed) > 0 {
		sb.WriteString(" Failed: ")
		sb.WriteString(strings.Join(stepLabels(state, failed), ", "))
		sb.WriteString(".")
	}
	return sb.String()
}

// stepLabels renders "action (step N)" labels for the given step ids.
func stepLabels(state *ExecutionState, ids []int) []string {
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		action := "unknown"
		for _, step := range state.Steps {
			if step.ID == id {
				action = step.Action
				break
			}
		}
		labels = append(labels, fmt.Sprintf("%s (step %d)", action, id))
	}
	return labels
}

// failureSummaries builds the per-step failure descriptions for details.
func failureSummaries(state *ExecutionState, failed []int) []map[string]any {
	summaries := make([]map[string]any, 0, len(failed))
	for _, id := range failed {
		result := state.Results[id]
		summary := map[string]any{
			"step_id": id,
			"error":   result.ErrorMessage,
		}
		if result.ErrorType != "" {
			summary["error_type"] = result.ErrorType
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// collectArtifacts pulls up to maxArtifacts artifact references (file paths,
// ids) from step payloads, in step order.
func collectArtifacts(state *ExecutionState) []string {
	var artifacts []string

	appendArtifact := func(value any) {
		if len(artifacts) >= maxArtifacts {
			return
		}
		if s, ok := value.(string); ok && s != "" {
			artifacts = append(artifacts, s)
		}
	}

	for _, step := range state.Steps {
		result, ok := state.Results[step.ID]
		if !ok || !result.Succeeded() {
			continue
		}

		if listed, ok := result.Field(capability.ArtifactsField); ok {
			switch values := listed.(type) {
			case []string:
				for _, v := range values {
					appendArtifact(v)
				}
			case []any:
				for _, v := range values {
					appendArtifact(v)
				}
			}
		}
		for _, field := range []string{"file_path", "path", "url"} {
			if v, ok := result.Field(field); ok {
				appendArtifact(v)
			}
		}
	}

	return artifacts
}

// fallbackMessage is the last-resort safety net: a guaranteed non-empty
// message naming which capabilities failed. It must never itself fail.
func fallbackMessage(state *ExecutionState) string {
	failed := state.failedSteps()
	if len(failed) == 0 {
		return "The request was processed, but no reply was produced."
	}

	names := make(map[string]struct{})
	var ordered []string
	for _, id := range failed {
		for _, step := range state.Steps {
			if step.ID != id {
				continue
			}
			if _, seen := names[step.Action]; !seen {
				names[step.Action] = struct{}{}
				ordered = append(ordered, step.Action)
			}
		}
	}
	if len(ordered) == 0 {
		return "The request could not be fully completed."
	}
	return fmt.Sprintf("The request could not be fully completed. Failed capabilities: %s.",
		strings.Join(ordered, ", "))
}

// unresolvedDiagnostics scans the terminal message and details for leftover
// $step reference syntax, a regression signal surfaced without auto-repair.
func unresolvedDiagnostics(final *FinalResult) []string {
	var diagnostics []string

	collect := func(s string) {
		for _, ref := range template.FindReferences(s) {
			diagnostics = append(diagnostics, ref.Raw)
		}
	}

	collect(final.Message)
	for _, value := range final.Details {
		if s, ok := value.(string); ok {
			collect(s)
		}
	}
	return diagnostics
}
