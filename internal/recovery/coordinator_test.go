package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-ai/steward/internal/capability"
)

// fakeCapability fails until the params contain the key it wants, recording
// every invocation.
type fakeCapability struct {
	name        string
	requiredKey string
	calls       []map[string]any
	failAlways  bool
}

func (f *fakeCapability) Name() string { return f.name }
func (f *fakeCapability) Description() string { return "test capability" }
func (f *fakeCapability) ParameterSchema() map[string]string { return nil }

func (f *fakeCapability) Invoke(_ context.Context, params map[string]any) (*capability.StepResult, error) {
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	f.calls = append(f.calls, copied)

	if f.failAlways {
		return capability.NewErrorResult("transient_error", "still failing"), nil
	}
	if v, ok := params[f.requiredKey]; !ok || v == nil {
		return capability.NewErrorResult("invalid_parameters", fmt.Sprintf("missing %s", f.requiredKey)), nil
	}
	return &capability.StepResult{Payload: map[string]any{"ok": true}}, nil
}

// fakeClassifier returns a fixed verdict or error.
type fakeClassifier struct {
	verdict *Verdict
	err     error
	inputs  []ClassifyInput
}

func (f *fakeClassifier) Classify(_ context.Context, input ClassifyInput) (*Verdict, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return f.verdict, nil
}

func TestInvokeSuccessSkipsClassifier(t *testing.T) {
	target := &fakeCapability{name: "message.send", requiredKey: "body"}
	classifier := &fakeClassifier{}
	coordinator := NewCoordinator(classifier)

	result := coordinator.Invoke(context.Background(), target, map[string]any{"body": "hi"}, 1, nil)

	assert.True(t, result.Succeeded())
	assert.Empty(t, classifier.inputs)
	assert.Empty(t, coordinator.RecentErrors("message.send"))
}

func TestInvokeRetryWithSuggestedParameters(t *testing.T) {
	target := &fakeCapability{name: "message.send", requiredKey: "recipient"}
	classifier := &fakeClassifier{
		verdict: &Verdict{
			RetryRecommended:    true,
			SuggestedParameters: map[string]any{"recipient": "alice@example.com"},
			Recoverable:         true,
		},
	}
	coordinator := NewCoordinator(classifier)

	params := map[string]any{"body": "hello"}
	result := coordinator.Invoke(context.Background(), target, params, 1, nil)

	require.True(t, result.Succeeded())
	require.Len(t, target.calls, 2)

	// Suggested parameters are merged over the originals on the retry.
	assert.Equal(t, "hello", target.calls[1]["body"])
	assert.Equal(t, "alice@example.com", target.calls[1]["recipient"])

	// The original params map was not mutated.
	_, mutated := params["recipient"]
	assert.False(t, mutated)

	// Recovery success leaves no error history behind.
	assert.Empty(t, coordinator.RecentErrors("message.send"))
}

func TestInvokeSuggestedParametersWinCollisions(t *testing.T) {
	target := &fakeCapability{name: "file.write", requiredKey: "path"}
	classifier := &fakeClassifier{
		verdict: &Verdict{
			RetryRecommended:    true,
			SuggestedParameters: map[string]any{"path": "/tmp/fixed.txt"},
		},
	}
	coordinator := NewCoordinator(classifier)

	result := coordinator.Invoke(context.Background(), target, map[string]any{"other": 1, "path": nil}, 1, nil)

	require.True(t, result.Succeeded())
	require.Len(t, target.calls, 2)
	// The suggested value wins the key collision on the retry.
	assert.Equal(t, "/tmp/fixed.txt", target.calls[1]["path"])
	assert.Equal(t, 1, target.calls[1]["other"])
}

func TestInvokeNoSecondRetry(t *testing.T) {
	target := &fakeCapability{name: "message.send", failAlways: true}
	classifier := &fakeClassifier{
		verdict: &Verdict{
			RetryRecommended:    true,
			SuggestedParameters: map[string]any{"recipient": "bob"},
			Recoverable:         true,
		},
	}
	coordinator := NewCoordinator(classifier)

	result := coordinator.Invoke(context.Background(), target, map[string]any{}, 1, nil)

	assert.False(t, result.Succeeded())
	// Initial invocation plus exactly one recovery retry.
	assert.Len(t, target.calls, 2)
	// The verdict survives on the final result for the dependency gate.
	assert.True(t, result.Recoverable())
	assert.True(t, result.RetryPossible)
}

func TestInvokeSecondAttemptNeverRetries(t *testing.T) {
	target := &fakeCapability{name: "message.send", failAlways: true}
	classifier := &fakeClassifier{
		verdict: &Verdict{
			RetryRecommended:    true,
			SuggestedParameters: map[string]any{"recipient": "bob"},
		},
	}
	coordinator := NewCoordinator(classifier)

	coordinator.Invoke(context.Background(), target, map[string]any{}, 2, nil)

	assert.Len(t, target.calls, 1)
}

func TestInvokeClassifierFailureDegrades(t *testing.T) {
	target := &fakeCapability{name: "message.send", failAlways: true}
	classifier := &fakeClassifier{err: errors.New("classifier unavailable")}
	coordinator := NewCoordinator(classifier)

	result := coordinator.Invoke(context.Background(), target, map[string]any{}, 1, nil)

	assert.False(t, result.Succeeded())
	assert.Len(t, target.calls, 1)
	assert.Equal(t, []string{"still failing"}, coordinator.RecentErrors("message.send"))
}

func TestInvokeNilClassifierDisablesRetry(t *testing.T) {
	target := &fakeCapability{name: "message.send", failAlways: true}
	coordinator := NewCoordinator(nil)

	result := coordinator.Invoke(context.Background(), target, map[string]any{}, 1, nil)

	assert.False(t, result.Succeeded())
	assert.Len(t, target.calls, 1)
}

func TestRecentErrorsBounded(t *testing.T) {
	target := &fakeCapability{name: "message.send", failAlways: true}
	coordinator := NewCoordinator(nil)

	for i := 0; i < 8; i++ {
		coordinator.Invoke(context.Background(), target, map[string]any{}, 1, nil)
	}

	history := coordinator.RecentErrors("message.send")
	assert.Len(t, history, 5)
}

func TestInvokeNoSuggestionsNoRetry(t *testing.T) {
	target := &fakeCapability{name: "message.send", failAlways: true}
	classifier := &fakeClassifier{
		verdict: &Verdict{RetryRecommended: true},
	}
	coordinator := NewCoordinator(classifier)

	coordinator.Invoke(context.Background(), target, map[string]any{}, 1, nil)

	assert.Len(t, target.calls, 1)
}
