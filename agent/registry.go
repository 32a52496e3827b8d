package agent

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
)

// ErrDuplicateAgent is returned when a name is registered twice.
var ErrDuplicateAgent = errors.New("agent already registered")

// Registry maps agent names to agents. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]core.Agent
}

// NewRegistry creates a registry pre-populated with agents. Duplicate names
// panic, mirroring MustRegister.
func NewRegistry(agents ...core.Agent) *Registry {
	r := &Registry{agents: make(map[string]core.Agent)}
	for _, a := range agents {
		r.MustRegister(a)
	}
	return r
}

// Register adds a under its name.
func (r *Registry) Register(a core.Agent) error {
	if a == nil || a.Name() == "" {
		return errors.New("agent must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.Name())
	}
	r.agents[a.Name()] = a
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(a core.Agent) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

// Replace registers a, overwriting any agent with the same name.
func (r *Registry) Replace(a core.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name()] = a
}

// Unregister removes the named agent and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.agents[name]
	delete(r.agents, name)
	return ok
}

// Lookup returns the named agent.
func (r *Registry) Lookup(name string) (core.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
