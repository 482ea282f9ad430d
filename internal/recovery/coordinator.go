package recovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/steward-ai/steward/internal/capability"
)

// maxAttempts caps invocation attempts per step: the initial invocation plus
// at most one recovery retry.
const maxAttempts = 2

// recentErrorLimit bounds the per-capability error history.
const recentErrorLimit = 5

// Coordinator wraps capability invocations with classifier-guided recovery.
// One Coordinator exists per run; it is owned and driven by the worker
// goroutine, with internal locking only so history accessors stay safe if
// read elsewhere.
type Coordinator struct {
	classifier Classifier
	logger     *slog.Logger

	mu           sync.RWMutex
	recentErrors map[string][]string
}

// CoordinatorOption is a functional option for configuring a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger configures the coordinator's structured logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a Coordinator. A nil classifier disables recovery
// retries entirely; failures are recorded as-is.
func NewCoordinator(classifier Classifier, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		classifier:   classifier,
		logger:       slog.Default(),
		recentErrors: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke runs one capability invocation with bounded recovery. The returned
// StepResult is never nil and carries the classifier's recoverability
// verdict in its payload when the invocation ultimately failed.
//
// attempt is the 1-based attempt count for this step so far (including this
// invocation); the recovery retry only happens while attempt < 2.
func (c *Coordinator) Invoke(ctx context.Context, target capability.Capability, params map[string]any, attempt int, runContext map[string]any) *capability.StepResult {
	name := target.Name()

	result := c.invokeOnce(ctx, target, params)
	if result.Succeeded() {
		c.clearErrors(name)
		return result
	}

	verdict := c.classify(ctx, name, params, result, attempt, runContext)
	if verdict != nil {
		attachVerdict(result, verdict)
	}

	if verdict != nil && verdict.RetryRecommended && attempt < maxAttempts && len(verdict.SuggestedParameters) > 0 {
		merged := mergeParams(params, verdict.SuggestedParameters)
		c.logger.InfoContext(ctx, "retrying capability with suggested parameters",
			"capability", name,
			"attempt", attempt+1,
		)

		retried := c.invokeOnce(ctx, target, merged)
		if retried.Succeeded() {
			c.clearErrors(name)
			return retried
		}

		// The retry replaces the first attempt's result; re-attach the
		// verdict so the dependency gate still sees recoverability.
		attachVerdict(retried, verdict)
		result = retried
	}

	c.recordError(name, result.ErrorMessage)
	return result
}

// invokeOnce executes the capability and converts an infrastructure error
// into a failed StepResult so nothing escapes the loop boundary.
func (c *Coordinator) invokeOnce(ctx context.Context, target capability.Capability, params map[string]any) *capability.StepResult {
	result, err := target.Invoke(ctx, params)
	if err != nil {
		c.logger.WarnContext(ctx, "capability invocation returned error",
			"capability", target.Name(),
			"error", err,
		)
		return capability.NewErrorResult("invocation_error", err.Error())
	}
	if result == nil {
		return capability.NewErrorResult("invocation_error", "capability returned no result")
	}
	return result
}

// classify consults the external classifier. Classifier failures degrade to
// "record the raw error": a nil verdict is returned and the run continues.
func (c *Coordinator) classify(ctx context.Context, name string, params map[string]any, result *capability.StepResult, attempt int, runContext map[string]any) *Verdict {
	if c.classifier == nil {
		return nil
	}

	verdict, err := c.classifier.Classify(ctx, ClassifyInput{
		Capability:   name,
		Params:       params,
		ErrorType:    result.ErrorType,
		ErrorMessage: result.ErrorMessage,
		Attempt:      attempt,
		Context:      runContext,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "error classifier failed, recording raw error",
			"capability", name,
			"error", err,
		)
		return nil
	}
	return verdict
}

// RecentErrors returns a copy of the bounded error history for a capability.
func (c *Coordinator) RecentErrors(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := c.recentErrors[name]
	out := make([]string, len(history))
	copy(out, history)
	return out
}

func (c *Coordinator) clearErrors(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.recentErrors, name)
}

func (c *Coordinator) recordError(name, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := append(c.recentErrors[name], message)
	if len(history) > recentErrorLimit {
		history = history[len(history)-recentErrorLimit:]
	}
	c.recentErrors[name] = history
}

// attachVerdict records the classifier verdict on a failed result for
// downstream dependency-gate consumption.
func attachVerdict(result *capability.StepResult, verdict *Verdict) {
	if result.Payload == nil {
		result.Payload = make(map[string]any)
	}
	result.Payload[capability.RecoverableField] = verdict.Recoverable
	result.RetryPossible = result.RetryPossible || verdict.RetryRecommended
}

// mergeParams overlays suggested parameters on the originals without
// mutating either map. Suggested values win on key collision.
func mergeParams(params, suggested map[string]any) map[string]any {
	merged := make(map[string]any, len(params)+len(suggested))
	for k, v := range params {
		merged[k] = v
	}
	for k, v := range suggested {
		merged[k] = v
	}
	return merged
}
