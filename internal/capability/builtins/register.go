// Package builtins provides built-in capabilities that ship with the engine.
// They cover the leaf actions most plans end with: composing text, replying
// to the user, and reading the clock.
package builtins

import (
	"github.com/steward-ai/steward/internal/capability"
)

// RegisterBuiltins registers all built-in capabilities with the catalog.
// It should be called once during engine bootstrap, before the first run is
// submitted.
func RegisterBuiltins(catalog *capability.Registry) {
	catalog.Register(NewRespondCapability())
	catalog.Register(NewComposeCapability())
	catalog.Register(NewClockCapability())
}

// BuiltinNames returns the names of all built-in capabilities.
func BuiltinNames() []string {
	return []string{
		"respond",
		"message.compose",
		"clock.now",
	}
}
