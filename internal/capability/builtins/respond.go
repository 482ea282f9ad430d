package builtins

import (
	"context"
	"fmt"
	"strings"

	"github.com/steward-ai/steward/internal/capability"
)

// RespondCapability delivers the user-facing reply for a run. Its payload
// carries the reply envelope tag, which the finalizer picks up as the
// terminal message.
type RespondCapability struct{}

// NewRespondCapability creates the respond capability.
func NewRespondCapability() capability.Capability {
	return &RespondCapability{}
}

// Name returns the unique identifier for this capability.
func (c *RespondCapability) Name() string {
	return "respond"
}

// Description returns a human-readable description of what this capability does.
func (c *RespondCapability) Description() string {
	return "Deliver the final reply to the user. The message parameter becomes the run's terminal message."
}

// ParameterSchema describes the accepted parameters.
func (c *RespondCapability) ParameterSchema() map[string]string {
	return map[string]string{
		"message": "string, required: the reply text to deliver",
	}
}

// Invoke emits the reply envelope. An empty message is a capability error,
// not an infrastructure fault.
func (c *RespondCapability) Invoke(_ context.Context, params map[string]any) (*capability.StepResult, error) {
	message, _ := params["message"].(string)
	if strings.TrimSpace(message) == "" {
		if raw, ok := params["message"]; ok && raw != nil {
			message = fmt.Sprintf("%v", raw)
		}
	}
	if strings.TrimSpace(message) == "" {
		return capability.NewErrorResult("invalid_parameters", "respond requires a non-empty message parameter"), nil
	}

	return &capability.StepResult{
		Payload: map[string]any{
			capability.KindField:    capability.KindReply,
			capability.MessageField: message,
		},
	}, nil
}
