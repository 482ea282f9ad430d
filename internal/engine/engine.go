package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/capture"
	"github.com/steward-ai/steward/internal/escalation"
	"github.com/steward-ai/steward/internal/events"
	"github.com/steward-ai/steward/internal/plan"
	"github.com/steward-ai/steward/internal/recovery"
	"github.com/steward-ai/steward/internal/session"
	"github.com/steward-ai/steward/internal/template"
	"github.com/steward-ai/steward/internal/types"
)

// defaultPlanRequests bounds how many times planning is requested per run.
// Requests beyond the first only happen when a guard pattern discards a
// false impossibility verdict.
const defaultPlanRequests = 2

// outputPreviewLimit truncates succeeded-step output previews in events.
const outputPreviewLimit = 120

// AlternateExecutor is the alternate, higher-cost execution path that a
// repeatedly-failing step is diverted to when the escalation scorer fires.
// A failure of the alternate path is recorded like any capability error;
// there is no further recursion.
type AlternateExecutor interface {
	Execute(ctx context.Context, step plan.Step, params map[string]any) (*capability.StepResult, error)
}

// Engine drives the Planning → Executing → Finalize loop for submitted
// goals. One Engine serves a whole session; each submitted goal gets its own
// run with run-scoped state, a dedicated worker goroutine, and a
// single-assignment result box the caller blocks on.
type Engine struct {
	planner    plan.Planner
	catalog    *capability.Registry
	classifier recovery.Classifier
	alternate  AlternateExecutor
	bus        events.Bus
	recorder   session.Recorder
	logger     *slog.Logger
	tracer     trace.Tracer
	scorer     *escalation.Scorer
	guards     []plan.GuardPattern

	planRequests int

	mu                 sync.Mutex
	sessionEscalations int
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLogger configures the engine's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracer configures an OpenTelemetry tracer for run and step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithEventBus configures the progress event bus.
func WithEventBus(bus events.Bus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithRecorder configures the session recorder invoked on the background
// completion path.
func WithRecorder(recorder session.Recorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

// WithClassifier configures the external error classifier consulted by the
// recovery coordinator.
func WithClassifier(classifier recovery.Classifier) Option {
	return func(e *Engine) {
		e.classifier = classifier
	}
}

// WithAlternateExecutor configures the alternate execution path used when a
// step escalates.
func WithAlternateExecutor(alternate AlternateExecutor) Option {
	return func(e *Engine) {
		e.alternate = alternate
	}
}

// WithEscalationConfig configures the escalation scorer.
func WithEscalationConfig(config escalation.Config) Option {
	return func(e *Engine) {
		e.scorer = escalation.NewScorer(config)
	}
}

// WithPlanRequests sets the planning request budget per run. Values below 1
// are ignored.
func WithPlanRequests(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.planRequests = n
		}
	}
}

// WithGuardPatterns replaces the built-in impossibility guard list.
func WithGuardPatterns(patterns []plan.GuardPattern) Option {
	return func(e *Engine) {
		e.guards = patterns
	}
}

// NewEngine creates an Engine bound to a planning service and a capability
// catalog. Defaults: slog.Default() logging, no tracing, events and session
// records discarded, no classifier (recovery retries disabled), no alternate
// execution path, default escalation config and guard patterns.
func NewEngine(planner plan.Planner, catalog *capability.Registry, opts ...Option) *Engine {
	e := &Engine{
		planner:      planner,
		catalog:      catalog,
		bus:          events.NopBus{},
		recorder:     session.NopRecorder{},
		logger:       slog.Default(),
		scorer:       escalation.NewScorer(escalation.DefaultConfig()),
		guards:       plan.DefaultGuardPatterns(),
		planRequests: defaultPlanRequests,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run is the caller's handle on one submitted goal.
type Run struct {
	// ID identifies the run.
	ID types.ID

	result *capture.Box[*FinalResult]
	cancel cancelFlag
}

// Result returns the single-assignment box the final result is captured in.
func (r *Run) Result() *capture.Box[*FinalResult] {
	return r.result
}

// Wait blocks until the final result is captured or the context is done.
func (r *Run) Wait(ctx context.Context) (*FinalResult, error) {
	return r.result.Wait(ctx)
}

// Peek reports a captured result without waiting longer than timeout.
func (r *Run) Peek(timeout time.Duration) (*FinalResult, bool) {
	return r.result.WaitTimeout(timeout)
}

// Cancel requests cooperative cancellation. It never interrupts an in-flight
// capability invocation; it only prevents the next unit of work from
// starting. The run still produces exactly one final result.
func (r *Run) Cancel(reason string) {
	r.cancel.request(reason)
}

// Submit starts a run for the goal and returns immediately. The worker
// goroutine executes the full loop; the caller blocks on the returned run's
// result box.
func (e *Engine) Submit(ctx context.Context, goal string) *Run {
	run := &Run{
		ID:     types.NewID(),
		result: capture.New[*FinalResult](),
	}
	go e.work(ctx, run, goal)
	return run
}

// Execute submits the goal and blocks until its final result is captured.
func (e *Engine) Execute(ctx context.Context, goal string) (*FinalResult, error) {
	return e.Submit(ctx, goal).Wait(ctx)
}

// work is the run's worker goroutine: plan, execute, finalize, capture,
// then background persistence. No collaborator failure escapes it.
func (e *Engine) work(ctx context.Context, run *Run, goal string) {
	state := newExecutionState(run.ID, goal)

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "panic in execution worker",
				"run_id", run.ID,
				"panic", r,
			)
			run.result.Set(&FinalResult{
				RunID:       state.RunID,
				Status:      ResultError,
				Message:     fmt.Sprintf("internal error: %v", r),
				StepResults: state.Results,
			})
		}
	}()

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "engine.run",
			trace.WithAttributes(
				attribute.String("run.id", run.ID.String()),
				attribute.String("run.goal", goal),
			),
		)
		defer span.End()
	}

	e.logger.InfoContext(ctx, "run started", "run_id", run.ID, "goal", goal)
	coordinator := recovery.NewCoordinator(e.classifier, recovery.WithLogger(e.logger))

	e.emit(ctx, state, events.Event{Type: events.EventRunStarted})

	// Cancellation is checked before planning starts and at the start of
	// every step iteration.
	if reason, cancelled := run.cancel.check(); cancelled {
		state.cancelReason = reason
		state.transition(StatusCancelled)
	} else if err := e.planPhase(ctx, state); err != nil {
		e.logger.WarnContext(ctx, "planning failed", "run_id", run.ID, "error", err)
		state.terminalErr = err
		state.transition(StatusError)
	} else {
		state.transition(StatusExecuting)
		e.executeLoop(ctx, run, state, coordinator)
	}

	if !state.Status.Terminal() {
		state.transition(StatusCompleted)
	}

	final := e.finalize(state)
	captured := run.result.Set(final)
	e.emitTerminal(ctx, state, final)
	e.logger.InfoContext(ctx, "run finished",
		"run_id", run.ID,
		"status", final.Status,
		"duration", time.Since(state.StartedAt),
	)

	// Background completion: the caller has already been released by the
	// capture above, so persistence cannot block it.
	if captured {
		e.recordSession(ctx, state, final)
	}
}

// planPhase invokes the planner, applies the impossibility guard, validates
// the plan against the catalog, and runs the auto-correction pass.
func (e *Engine) planPhase(ctx context.Context, state *ExecutionState) error {
	req := plan.Request{
		Goal:    state.Goal,
		Catalog: e.catalog.Descriptors(),
		Context: map[string]any{"run_id": state.RunID.String()},
	}

	for attempt := 1; attempt <= e.planRequests; attempt++ {
		resp, err := e.planner.Plan(ctx, req)
		if err != nil {
			return types.WrapError(types.PLAN_REQUEST_FAILED, "planning service call failed", err)
		}
		if resp == nil {
			return types.NewError(types.PLAN_INVALID_STRUCTURE, "planner returned an empty response")
		}

		if resp.Impossible {
			pattern, discard := plan.CheckImpossibility(resp.Reason, e.catalog, e.guards)
			if discard && attempt < e.planRequests {
				e.logger.InfoContext(ctx, "discarding impossibility verdict, re-requesting plan",
					"run_id", state.RunID,
					"pattern", pattern,
					"reason", resp.Reason,
				)
				req.Context["discarded_impossibility"] = resp.Reason
				continue
			}
			return types.NewErrorf(types.PLAN_IMPOSSIBLE, "planner reports the task impossible: %s", resp.Reason)
		}

		if err := plan.Validate(resp.Plan, e.catalog); err != nil {
			return err
		}

		for _, correction := range plan.AutoCorrect(resp.Plan, e.catalog) {
			e.logger.InfoContext(ctx, "plan auto-correction applied",
				"run_id", state.RunID,
				"correction", correction,
			)
		}

		state.Steps = resp.Plan.Steps
		return nil
	}

	return types.NewError(types.PLAN_REQUEST_FAILED, "planning attempts exhausted")
}

// executeLoop processes steps strictly in declared order, one iteration per
// step, advancing the cursor by exactly one each time.
func (e *Engine) executeLoop(ctx context.Context, run *Run, state *ExecutionState, coordinator *recovery.Coordinator) {
	for state.Cursor < len(state.Steps) {
		if reason, cancelled := run.cancel.check(); cancelled {
			state.cancelReason = reason
			state.transition(StatusCancelled)
			return
		}
		if err := ctx.Err(); err != nil {
			state.cancelReason = err.Error()
			state.transition(StatusCancelled)
			return
		}

		e.executeStep(ctx, state, coordinator, state.Steps[state.Cursor])
		state.Cursor++
	}

	state.transition(StatusCompleted)
}

// executeStep processes one step: dependency gate, parameter resolution,
// escalation decision, then invocation through the recovery coordinator.
// Every outcome is recorded as this step's single StepResult.
func (e *Engine) executeStep(ctx context.Context, state *ExecutionState, coordinator *recovery.Coordinator, step plan.Step) {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "engine.step",
			trace.WithAttributes(
				attribute.Int("step.id", step.ID),
				attribute.String("step.action", step.Action),
			),
		)
		defer span.End()
	}

	e.emit(ctx, state, events.Event{
		Type:       events.EventStepStarted,
		StepID:     step.ID,
		Capability: step.Action,
	})

	readiness := evaluateReadiness(step, state.Results)
	if !readiness.Ready {
		result := skipResult(readiness)
		state.Results[step.ID] = result
		e.logger.InfoContext(ctx, "step skipped",
			"run_id", state.RunID,
			"step_id", step.ID,
			"failed_dependencies", readiness.FailedIDs,
			"recoverable_dependencies", readiness.RecoverableIDs,
		)
		e.emit(ctx, state, events.Event{
			Type:       events.EventStepFailed,
			StepID:     step.ID,
			Capability: step.Action,
			Error:      result.ErrorMessage,
		})
		return
	}

	// Parameters are resolved into a copy; the plan's step stays immutable.
	params := resolveParameters(step, state.Results)

	attempts := state.ToolAttempts[step.Action] + 1
	state.ToolAttempts[step.Action] = attempts

	usage := escalation.Usage{
		RunCount:     state.EscalationUsage.RunCount,
		SessionCount: e.sessionEscalationCount(),
	}
	decision := e.scorer.Score(step.Action, attempts, coordinator.RecentErrors(step.Action), usage)

	var result *capability.StepResult
	if decision.Escalate {
		result = e.invokeAlternate(ctx, state, step, params, decision)
	} else {
		target, err := e.catalog.Get(step.Action)
		if err != nil {
			result = capability.NewErrorResult("capability_not_found", err.Error())
		} else {
			runContext := map[string]any{
				"goal":   state.Goal,
				"run_id": state.RunID.String(),
			}
			result = coordinator.Invoke(ctx, target, params, attempts, runContext)
		}
	}

	state.Results[step.ID] = result

	if result.Succeeded() {
		e.emit(ctx, state, events.Event{
			Type:          events.EventStepSucceeded,
			StepID:        step.ID,
			Capability:    step.Action,
			OutputPreview: outputPreview(result),
		})
	} else {
		e.logger.WarnContext(ctx, "step failed",
			"run_id", state.RunID,
			"step_id", step.ID,
			"capability", step.Action,
			"error", result.ErrorMessage,
		)
		e.emit(ctx, state, events.Event{
			Type:       events.EventStepFailed,
			StepID:     step.ID,
			Capability: step.Action,
			Error:      result.ErrorMessage,
			CanRetry:   result.RetryPossible,
		})
	}
}

// invokeAlternate diverts a step to the alternate execution path, charging
// the run and session escalation budgets. An unavailable or failing
// alternate path is recorded like any capability error, with no recursion.
func (e *Engine) invokeAlternate(ctx context.Context, state *ExecutionState, step plan.Step, params map[string]any, decision escalation.Decision) *capability.StepResult {
	state.EscalationUsage.RunCount++
	state.EscalationUsage.SessionCount = e.bumpSessionEscalations()

	e.logger.InfoContext(ctx, "escalating step to alternate execution path",
		"run_id", state.RunID,
		"step_id", step.ID,
		"capability", step.Action,
		"confidence", decision.Confidence,
		"reason", decision.Reason,
	)

	if e.alternate == nil {
		return capability.NewErrorResult("escalation_error", "no alternate execution path is configured")
	}

	result, err := e.alternate.Execute(ctx, step, params)
	if err != nil {
		return capability.NewErrorResult("escalation_error", err.Error())
	}
	if result == nil {
		return capability.NewErrorResult("escalation_error", "alternate execution path returned no result")
	}
	return result
}

// resolveParameters resolves cross-step references in the step's parameters
// into a fresh copy, never mutating the step.
func resolveParameters(step plan.Step, results map[int]*capability.StepResult) map[string]any {
	if step.Parameters == nil {
		return map[string]any{}
	}
	resolved, ok := template.Resolve(step.Parameters, results).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return resolved
}

// emit publishes a progress event stamped with the run id, timestamp, and
// the next run-scoped sequence number. Delivery is fire-and-forget.
func (e *Engine) emit(ctx context.Context, state *ExecutionState, event events.Event) {
	event.RunID = state.RunID
	event.Timestamp = time.Now()
	event.SequenceNumber = state.nextSequence()
	_ = e.bus.Publish(ctx, event)
}

// emitTerminal publishes the run-level terminal event for the final result.
func (e *Engine) emitTerminal(ctx context.Context, state *ExecutionState, final *FinalResult) {
	terminal := events.Event{Type: events.EventRunCompleted}
	switch final.Status {
	case ResultError:
		terminal.Type = events.EventRunFailed
		terminal.Error = final.Message
	case ResultCancelled:
		terminal.Type = events.EventRunCancelled
	}
	e.emit(ctx, state, terminal)
}

// recordSession hands the final result and full step history to the session
// recorder. Runs after capture, never on the caller's blocking path.
func (e *Engine) recordSession(ctx context.Context, state *ExecutionState, final *FinalResult) {
	record := session.Record{
		RunID:       state.RunID,
		Goal:        state.Goal,
		Status:      final.Status.String(),
		Message:     final.Message,
		Details:     final.Details,
		Artifacts:   final.Artifacts,
		Steps:       state.Steps,
		Results:     state.Results,
		CompletedAt: time.Now(),
	}
	if err := e.recorder.Record(ctx, record); err != nil {
		e.logger.WarnContext(ctx, "session recording failed",
			"run_id", state.RunID,
			"error", err,
		)
	}
}

func (e *Engine) sessionEscalationCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionEscalations
}

func (e *Engine) bumpSessionEscalations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionEscalations++
	return e.sessionEscalations
}

// outputPreview renders a short preview of a succeeded step's output.
func outputPreview(result *capability.StepResult) string {
	message, ok := result.Field(capability.MessageField)
	if !ok {
		return ""
	}
	s, ok := message.(string)
	if !ok {
		return ""
	}
	if len(s) > outputPreviewLimit {
		return s[:outputPreviewLimit] + "…"
	}
	return s
}
