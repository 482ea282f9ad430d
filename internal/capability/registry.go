package capability

import (
	"sort"
	"sync"

	"github.com/steward-ai/steward/internal/types"
)

// Registry is the capability catalog. It maps capability names to
// implementations and produces the descriptor list sent to the planner.
//
// Thread safety: all methods are safe for concurrent use. Registration
// normally happens once at startup, lookups happen on the worker goroutine.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		capabilities: make(map[string]Capability),
	}
}

// Register adds a capability to the catalog. Registering a name twice
// replaces the previous implementation.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[c.Name()] = c
}

// Get returns the capability with the given name.
func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.capabilities[name]
	if !ok {
		return nil, types.NewErrorf(types.CAPABILITY_NOT_FOUND, "capability %q is not registered", name)
	}
	return c, nil
}

// Has reports whether a capability with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.capabilities[name]
	return ok
}

// Names returns the registered capability names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the catalog entries for the planning request,
// sorted by capability name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.capabilities))
	for _, c := range r.capabilities {
		descriptors = append(descriptors, Descriptor{
			Name:            c.Name(),
			Description:     c.Description(),
			ParameterSchema: c.ParameterSchema(),
		})
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})
	return descriptors
}
