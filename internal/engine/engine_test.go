package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/escalation"
	"github.com/steward-ai/steward/internal/events"
	"github.com/steward-ai/steward/internal/plan"
	"github.com/steward-ai/steward/internal/session"
)

// scriptedCapability returns a scripted sequence of results, then repeats
// the last one.
type scriptedCapability struct {
	name    string
	results []*capability.StepResult

	mu    sync.Mutex
	calls int
}

func succeedWith(payload map[string]any) *capability.StepResult {
	return &capability.StepResult{Payload: payload}
}

func failWith(errorType, message string) *capability.StepResult {
	return capability.NewErrorResult(errorType, message)
}

func (c *scriptedCapability) Name() string { return c.name }
func (c *scriptedCapability) Description() string { return "scripted" }
func (c *scriptedCapability) ParameterSchema() map[string]string { return nil }

func (c *scriptedCapability) Invoke(_ context.Context, _ map[string]any) (*capability.StepResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.calls
	c.calls++
	if idx >= len(c.results) {
		idx = len(c.results) - 1
	}
	r := c.results[idx]
	// Copy so repeated failures do not share payload maps.
	out := &capability.StepResult{
		Error:         r.Error,
		ErrorType:     r.ErrorType,
		ErrorMessage:  r.ErrorMessage,
		RetryPossible: r.RetryPossible,
		Payload:       map[string]any{},
	}
	for k, v := range r.Payload {
		out.Payload[k] = v
	}
	return out, nil
}

func (c *scriptedCapability) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// paramRecorder succeeds and records the params of each invocation.
type paramRecorder struct {
	name    string
	payload map[string]any

	mu    sync.Mutex
	calls []map[string]any
}

func (c *paramRecorder) Name() string { return c.name }
func (c *paramRecorder) Description() string { return "recorder" }
func (c *paramRecorder) ParameterSchema() map[string]string { return nil }

func (c *paramRecorder) Invoke(_ context.Context, params map[string]any) (*capability.StepResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, params)
	c.mu.Unlock()
	return &capability.StepResult{Payload: c.payload}, nil
}

func (c *paramRecorder) lastParams(t *testing.T) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.calls)
	return c.calls[len(c.calls)-1]
}

// countingPlanner serves scripted responses in order.
type countingPlanner struct {
	mu        sync.Mutex
	responses []*plan.Response
	requests  []plan.Request
}

func (p *countingPlanner) Plan(_ context.Context, req plan.Request) (*plan.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	idx := len(p.requests) - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

func (p *countingPlanner) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func planOf(steps ...plan.Step) *plan.Response {
	return &plan.Response{Plan: &plan.Plan{Goal: "test goal", Steps: steps}}
}

func executeWait(t *testing.T, e *Engine, goal string) *FinalResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	final, err := e.Execute(ctx, goal)
	require.NoError(t, err)
	require.NotNil(t, final)
	return final
}

func TestRunSkipsStepWithFailedDependency(t *testing.T) {
	broken := &scriptedCapability{name: "screen.capture", results: []*capability.StepResult{
		failWith("device_error", "camera unavailable"),
	}}
	dependent := &scriptedCapability{name: "message.attach", results: []*capability.StepResult{
		succeedWith(map[string]any{"ok": true}),
	}}

	catalog := capability.NewRegistry()
	catalog.Register(broken)
	catalog.Register(dependent)

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "screen.capture"},
		plan.Step{ID: 2, Action: "message.attach", Dependencies: []int{1}},
	)}

	e := NewEngine(planner, catalog)
	final := executeWait(t, e, "capture the screen and attach it")

	// The dependent step was never invoked and carries the synthetic skip
	// result.
	assert.Equal(t, 0, dependent.callCount())
	skipped := final.StepResults[2]
	require.NotNil(t, skipped)
	assert.True(t, skipped.Error)
	assert.Equal(t, "dependency_error", skipped.ErrorType)
	assert.Contains(t, skipped.ErrorMessage, "Skipped due to failed dependencies: [1]")
	kind, _ := skipped.Field(capability.KindField)
	assert.Equal(t, capability.KindSkipped, kind)

	// Both steps failed, so the run grades as an error with a message that
	// names the failing capabilities.
	assert.Equal(t, ResultError, final.Status)
	assert.NotEmpty(t, final.Message)
}

func TestRunPartialSuccessWhenSomeStepsFail(t *testing.T) {
	working := &scriptedCapability{name: "calendar.read", results: []*capability.StepResult{
		succeedWith(map[string]any{"events": []any{"standup"}}),
	}}
	broken := &scriptedCapability{name: "media.play", results: []*capability.StepResult{
		failWith("device_error", "no speaker"),
	}}

	catalog := capability.NewRegistry()
	catalog.Register(working)
	catalog.Register(broken)

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "calendar.read"},
		plan.Step{ID: 2, Action: "media.play"},
	)}

	e := NewEngine(planner, catalog)
	final := executeWait(t, e, "check my calendar")

	assert.Equal(t, ResultPartialSuccess, final.Status)
	assert.NotEmpty(t, final.Message)
	require.NotNil(t, final.Details)
	assert.Contains(t, final.Details, "failure_details")
}

func TestRunTemplateResolutionAcrossSteps(t *testing.T) {
	compose := &scriptedCapability{name: "message.compose", results: []*capability.StepResult{
		succeedWith(map[string]any{"text": "lunch at noon?"}),
	}}
	send := &paramRecorder{name: "message.send", payload: map[string]any{"delivered": true}}

	catalog := capability.NewRegistry()
	catalog.Register(compose)
	catalog.Register(send)

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "message.compose", Parameters: map[string]any{"topic": "lunch"}},
		plan.Step{ID: 2, Action: "message.send", Parameters: map[string]any{
			"body":      "$step1.text",
			"recipient": "alice",
		}, Dependencies: []int{1}},
	)}

	e := NewEngine(planner, catalog)
	final := executeWait(t, e, "send alice a lunch message")

	assert.Equal(t, ResultSuccess, final.Status)
	params := send.lastParams(t)
	assert.Equal(t, "lunch at noon?", params["body"])
	assert.Equal(t, "alice", params["recipient"])
}

func TestRunReplyPayloadBecomesTerminalMessage(t *testing.T) {
	respond := &scriptedCapability{name: "respond", results: []*capability.StepResult{
		succeedWith(map[string]any{
			capability.KindField:    capability.KindReply,
			capability.MessageField: "Your note was sent.",
		}),
	}}

	catalog := capability.NewRegistry()
	catalog.Register(respond)

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "respond"},
	)}

	e := NewEngine(planner, catalog)
	final := executeWait(t, e, "say something")

	assert.Equal(t, ResultSuccess, final.Status)
	assert.Equal(t, "Your note was sent.", final.Message)
}

func TestRunZeroStepPlanProducesNonEmptyMessage(t *testing.T) {
	catalog := capability.NewRegistry()
	planner := &plan.StaticPlanner{Response: planOf()}

	e := NewEngine(planner, catalog)
	final := executeWait(t, e, "do nothing in particular")

	assert.Equal(t, ResultSuccess, final.Status)
	assert.NotEmpty(t, final.Message)
}

func TestRunDiscardsFalseImpossibilityAndReplans(t *testing.T) {
	compose := &scriptedCapability{name: "message.compose", results: []*capability.StepResult{
		succeedWith(map[string]any{"text": "hi"}),
	}}
	send := &scriptedCapability{name: "message.send", results: []*capability.StepResult{
		succeedWith(map[string]any{"delivered": true}),
	}}

	catalog := capability.NewRegistry()
	catalog.Register(compose)
	catalog.Register(send)

	planner := &countingPlanner{responses: []*plan.Response{
		{Impossible: true, Reason: "message.send cannot compose message content"},
		planOf(
			plan.Step{ID: 1, Action: "message.compose"},
			plan.Step{ID: 2, Action: "message.send", Dependencies: []int{1}},
		),
	}}

	e := NewEngine(planner, catalog)
	final := executeWait(t, e, "send a message")

	assert.Equal(t, 2, planner.requestCount())
	assert.Equal(t, ResultSuccess, final.Status)

	// The re-request carries the discarded verdict in its context.
	second := planner.requests[1]
	assert.Contains(t, second.Context, "discarded_impossibility")
}

func TestRunGenuineImpossibilityFailsRun(t *testing.T) {
	catalog := capability.NewRegistry()

	planner := &countingPlanner{responses: []*plan.Response{
		{Impossible: true, Reason: "no capability can control smart home devices"},
	}}

	e := NewEngine(planner, catalog)
	final := executeWait(t, e, "turn off the lights")

	assert.Equal(t, 1, planner.requestCount())
	assert.Equal(t, ResultError, final.Status)
	assert.NotEmpty(t, final.Message)
}

func TestRunHallucinatedCapabilityFailsRun(t *testing.T) {
	catalog := capability.NewRegistry()

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "teleport.user"},
	)}

	e := NewEngine(planner, catalog)
	final := executeWait(t, e, "teleport me home")

	assert.Equal(t, ResultError, final.Status)
	assert.Contains(t, final.Message, "teleport.user")
}

func TestRunPlannerErrorFailsRun(t *testing.T) {
	catalog := capability.NewRegistry()
	planner := &plan.StaticPlanner{Err: errors.New("planning service unreachable")}

	e := NewEngine(planner, catalog)
	final := executeWait(t, e, "anything")

	assert.Equal(t, ResultError, final.Status)
	assert.NotEmpty(t, final.Message)
}

func TestRunCancelBeforeExecution(t *testing.T) {
	catalog := capability.NewRegistry()
	planner := &plan.StaticPlanner{Response: planOf()}

	e := NewEngine(planner, catalog)

	run := e.Submit(context.Background(), "cancel me")
	run.Cancel("user changed their mind")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := run.Wait(ctx)
	require.NoError(t, err)

	// Cancellation is cooperative: depending on timing the run either
	// observed the flag or completed first, but it always yields exactly
	// one result with a non-empty message.
	assert.NotEmpty(t, final.Message)
	if final.Status == ResultCancelled {
		assert.Contains(t, final.Message, "user changed their mind")
	}
}

func TestRunCancelMidExecution(t *testing.T) {
	catalog := capability.NewRegistry()

	started := make(chan struct{})
	release := make(chan struct{})
	slow := &blockingCapability{name: "slow.op", started: started, release: release}
	catalog.Register(slow)

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "slow.op"},
		plan.Step{ID: 2, Action: "slow.op"},
	)}

	e := NewEngine(planner, catalog)
	run := e.Submit(context.Background(), "two slow steps")

	<-started
	run.Cancel("took too long")
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := run.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, ResultCancelled, final.Status)
	assert.Contains(t, final.Message, "Run cancelled")
	// The in-flight step finished; the second never started.
	assert.Equal(t, 1, slow.callCount())
}

// blockingCapability blocks the first invocation until released.
type blockingCapability struct {
	name    string
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
	once  sync.Once
}

func (c *blockingCapability) Name() string { return c.name }
func (c *blockingCapability) Description() string { return "blocking" }
func (c *blockingCapability) ParameterSchema() map[string]string { return nil }

func (c *blockingCapability) Invoke(context.Context, map[string]any) (*capability.StepResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	c.once.Do(func() {
		close(c.started)
		<-c.release
	})
	return &capability.StepResult{Payload: map[string]any{"ok": true}}, nil
}

func (c *blockingCapability) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestRunEmitsMonotoneSequencedEvents(t *testing.T) {
	working := &scriptedCapability{name: "clock.now", results: []*capability.StepResult{
		succeedWith(map[string]any{"iso": "2026-08-30T12:00:00Z"}),
	}}

	catalog := capability.NewRegistry()
	catalog.Register(working)

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "clock.now"},
	)}

	bus := events.NewBus()
	defer bus.Close()
	stream, cleanup := bus.Subscribe(context.Background(), nil, 50)
	defer cleanup()

	e := NewEngine(planner, catalog, WithEventBus(bus))
	final := executeWait(t, e, "what time is it")
	require.Equal(t, ResultSuccess, final.Status)

	var got []events.Event
	timeout := time.After(time.Second)
	for len(got) == 0 || got[len(got)-1].Type != events.EventRunCompleted {
		select {
		case event := <-stream:
			got = append(got, event)
		case <-timeout:
			t.Fatalf("terminal event not observed, have %d events", len(got))
		}
	}

	require.GreaterOrEqual(t, len(got), 4)
	assert.Equal(t, events.EventRunStarted, got[0].Type)
	assert.Equal(t, events.EventStepStarted, got[1].Type)
	assert.Equal(t, events.EventStepSucceeded, got[2].Type)

	for i, event := range got {
		assert.Equal(t, i+1, event.SequenceNumber, "sequence must increase by one per event")
		assert.Equal(t, final.RunID, event.RunID)
	}
}

func TestRunEscalatesToAlternateExecutor(t *testing.T) {
	flaky := &scriptedCapability{name: "message.send", results: []*capability.StepResult{
		failWith("timeout", "gateway timeout"),
		failWith("timeout", "gateway timeout"),
	}}

	catalog := capability.NewRegistry()
	catalog.Register(flaky)

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "message.send"},
		plan.Step{ID: 2, Action: "message.send"},
	)}

	alternate := &fakeAlternate{result: succeedWith(map[string]any{"delivered": true})}

	e := NewEngine(planner, catalog,
		WithAlternateExecutor(alternate),
		WithEscalationConfig(escalation.Config{
			MaxPerRun:      2,
			MaxPerSession:  5,
			RetryThreshold: 2,
			MinConfidence:  0.3,
		}),
	)
	final := executeWait(t, e, "send it")

	// First use fails on the direct path; the second use reaches the
	// attempt threshold and diverts to the alternate executor.
	assert.Equal(t, 1, flaky.callCount())
	assert.Equal(t, 1, alternate.callCount())
	assert.Equal(t, ResultPartialSuccess, final.Status)
	require.NotNil(t, final.StepResults[2])
	assert.True(t, final.StepResults[2].Succeeded())
}

func TestRunEscalationWithoutAlternateRecordsError(t *testing.T) {
	flaky := &scriptedCapability{name: "message.send", results: []*capability.StepResult{
		failWith("timeout", "gateway timeout"),
	}}

	catalog := capability.NewRegistry()
	catalog.Register(flaky)

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "message.send"},
		plan.Step{ID: 2, Action: "message.send"},
	)}

	e := NewEngine(planner, catalog,
		WithEscalationConfig(escalation.Config{
			MaxPerRun:      2,
			MaxPerSession:  5,
			RetryThreshold: 2,
			MinConfidence:  0.3,
		}),
	)
	final := executeWait(t, e, "send it")

	assert.Equal(t, ResultError, final.Status)
	require.NotNil(t, final.StepResults[2])
	assert.Equal(t, "escalation_error", final.StepResults[2].ErrorType)
}

type fakeAlternate struct {
	result *capability.StepResult

	mu    sync.Mutex
	calls int
}

func (f *fakeAlternate) Execute(_ context.Context, _ plan.Step, _ map[string]any) (*capability.StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, nil
}

func (f *fakeAlternate) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunRecordsSessionAfterCompletion(t *testing.T) {
	respond := &scriptedCapability{name: "respond", results: []*capability.StepResult{
		succeedWith(map[string]any{
			capability.KindField:    capability.KindReply,
			capability.MessageField: "done",
		}),
	}}

	catalog := capability.NewRegistry()
	catalog.Register(respond)

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "respond"},
	)}

	store := session.NewInMemoryStore()
	e := NewEngine(planner, catalog, WithRecorder(store))
	final := executeWait(t, e, "say done")

	// Recording happens on the background completion path after the result
	// capture, so poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for store.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	record, ok := store.Get(final.RunID)
	require.True(t, ok, "session record not written")
	assert.Equal(t, "say done", record.Goal)
	assert.Equal(t, "success", record.Status)
	assert.Equal(t, "done", record.Message)
}

func TestRunResultIsSingleAssignment(t *testing.T) {
	catalog := capability.NewRegistry()
	planner := &plan.StaticPlanner{Response: planOf()}

	e := NewEngine(planner, catalog)
	run := e.Submit(context.Background(), "quick")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := run.Wait(ctx)
	require.NoError(t, err)
	second, err := run.Wait(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.False(t, run.Result().Set(&FinalResult{Message: "intruder"}))
	again, _ := run.Result().Get()
	assert.Same(t, first, again)
}

func TestRunUnmetCommitmentDowngradesSuccess(t *testing.T) {
	// The goal implies a message will be delivered, but the plan only reads
	// the calendar.
	calendar := &scriptedCapability{name: "calendar.read", results: []*capability.StepResult{
		succeedWith(map[string]any{"events": []any{}}),
	}}

	catalog := capability.NewRegistry()
	catalog.Register(calendar)

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "calendar.read"},
	)}

	e := NewEngine(planner, catalog)
	final := executeWait(t, e, "send bob a message about my schedule")

	assert.Equal(t, ResultPartialSuccess, final.Status)
	require.NotNil(t, final.Details)
	assert.Contains(t, final.Details, "unmet_commitments")
}

func TestRunConcurrentRunsAreIsolated(t *testing.T) {
	working := &scriptedCapability{name: "clock.now", results: []*capability.StepResult{
		succeedWith(map[string]any{"iso": "now"}),
	}}

	catalog := capability.NewRegistry()
	catalog.Register(working)

	planner := &plan.StaticPlanner{Response: planOf(
		plan.Step{ID: 1, Action: "clock.now"},
	)}

	e := NewEngine(planner, catalog)

	const runs = 5
	finals := make([]*FinalResult, runs)
	var wg sync.WaitGroup
	wg.Add(runs)
	for i := 0; i < runs; i++ {
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			final, err := e.Execute(ctx, fmt.Sprintf("goal %d", i))
			if err != nil {
				t.Errorf("run %d: %v", i, err)
				return
			}
			finals[i] = final
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, final := range finals {
		require.NotNil(t, final)
		assert.Equal(t, ResultSuccess, final.Status)
		assert.False(t, seen[final.RunID.String()], "run ids must be unique")
		seen[final.RunID.String()] = true
	}
}
