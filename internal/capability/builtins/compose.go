package builtins

import (
	"context"
	"fmt"
	"strings"

	"github.com/steward-ai/steward/internal/capability"
)

// ComposeCapability drafts a short message body from a topic and optional
// tone. Downstream steps reference its output as $stepN.text.
type ComposeCapability struct{}

// NewComposeCapability creates the message.compose capability.
func NewComposeCapability() capability.Capability {
	return &ComposeCapability{}
}

// Name returns the unique identifier for this capability.
func (c *ComposeCapability) Name() string {
	return "message.compose"
}

// Description returns a human-readable description of what this capability does.
func (c *ComposeCapability) Description() string {
	return "Compose a short message body. Output field 'text' holds the drafted message."
}

// ParameterSchema describes the accepted parameters.
func (c *ComposeCapability) ParameterSchema() map[string]string {
	return map[string]string{
		"topic": "string, required: what the message is about",
		"tone":  "string, optional: casual or formal, default casual",
	}
}

// Invoke drafts the message.
func (c *ComposeCapability) Invoke(_ context.Context, params map[string]any) (*capability.StepResult, error) {
	topic, _ := params["topic"].(string)
	if strings.TrimSpace(topic) == "" {
		return capability.NewErrorResult("invalid_parameters", "message.compose requires a non-empty topic parameter"), nil
	}

	tone, _ := params["tone"].(string)
	var text string
	switch strings.ToLower(tone) {
	case "formal":
		text = fmt.Sprintf("Dear recipient, I am writing regarding %s. Kind regards.", topic)
	default:
		text = fmt.Sprintf("Hey! Quick note about %s.", topic)
	}

	return &capability.StepResult{
		Payload: map[string]any{
			"text":  text,
			"topic": topic,
		},
	}, nil
}
