package engine

import (
	"sync"
	"time"

	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/escalation"
	"github.com/steward-ai/steward/internal/plan"
	"github.com/steward-ai/steward/internal/types"
)

// Status is the execution state machine's status. Transitions are
// one-directional: Planning is the entry state, the other three are terminal
// and are never left once entered.
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the status is one of the three terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// validTransitions encodes the one-directional state machine edges.
var validTransitions = map[Status][]Status{
	StatusPlanning:  {StatusExecuting, StatusError, StatusCancelled},
	StatusExecuting: {StatusExecuting, StatusCompleted, StatusError, StatusCancelled},
}

// ExecutionState is the run-scoped state owned and mutated exclusively by
// the worker goroutine. It never crosses the thread boundary; the caller
// only ever observes the run through the result capture box.
type ExecutionState struct {
	// RunID identifies this run.
	RunID types.ID

	// Goal is the natural-language request being executed.
	Goal string

	// Steps is the accepted, auto-corrected plan. Immutable once set.
	Steps []plan.Step

	// Cursor is the index of the step currently being processed. It only
	// increases, by exactly one per loop iteration.
	Cursor int

	// Results holds one StepResult per processed step id.
	Results map[int]*capability.StepResult

	// Status is the state machine status.
	Status Status

	// ToolAttempts counts invocation attempts per capability across the run.
	ToolAttempts map[string]int

	// EscalationUsage tracks how often escalation was used in this run and
	// in the surrounding session.
	EscalationUsage escalation.Usage

	// Sequence is the progress event counter; it increases by exactly one
	// per emitted event.
	Sequence int

	// StartedAt records when the run began.
	StartedAt time.Time

	// terminalErr records the error that forced a terminal Error status.
	terminalErr error

	// cancelReason records why the run was cancelled, when it was.
	cancelReason string
}

// newExecutionState creates the state for a fresh run in Planning status.
func newExecutionState(runID types.ID, goal string) *ExecutionState {
	return &ExecutionState{
		RunID:        runID,
		Goal:         goal,
		Status:       StatusPlanning,
		Results:      make(map[int]*capability.StepResult),
		ToolAttempts: make(map[string]int),
		StartedAt:    time.Now(),
	}
}

// transition moves the state machine to a new status. Transitions out of a
// terminal state are invalid and are ignored; the caller is expected to have
// checked Terminal() first, this is the boundary guard.
func (s *ExecutionState) transition(to Status) bool {
	for _, allowed := range validTransitions[s.Status] {
		if allowed == to {
			s.Status = to
			return true
		}
	}
	return false
}

// nextSequence advances and returns the run-scoped event sequence number.
func (s *ExecutionState) nextSequence() int {
	s.Sequence++
	return s.Sequence
}

// failedSteps returns the ids of steps whose result reports an error,
// in plan order.
func (s *ExecutionState) failedSteps() []int {
	var failed []int
	for _, step := range s.Steps {
		if result, ok := s.Results[step.ID]; ok && result.Error {
			failed = append(failed, step.ID)
		}
	}
	return failed
}

// succeededSteps returns the ids of steps that completed without error,
// in plan order.
func (s *ExecutionState) succeededSteps() []int {
	var ok []int
	for _, step := range s.Steps {
		if result, exists := s.Results[step.ID]; exists && result.Succeeded() {
			ok = append(ok, step.ID)
		}
	}
	return ok
}

// cancelFlag is the cooperative cancellation flag shared between the caller
// and the worker. The worker checks it at the start of planning and at the
// start of every step iteration; it never interrupts an in-flight
// capability invocation.
type cancelFlag struct {
	mu        sync.Mutex
	requested bool
	reason    string
}

func (c *cancelFlag) request(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requested {
		return
	}
	c.requested = true
	c.reason = reason
}

func (c *cancelFlag) check() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason, c.requested
}
