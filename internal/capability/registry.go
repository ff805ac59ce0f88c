// Package capability provides the registry mapping capability names to
// invocable providers. The registry is read-mostly: executions work against
// an immutable snapshot so concurrent registry updates never race a running
// task.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownCapability indicates an invocation referenced a capability that
// no provider declares.
var ErrUnknownCapability = errors.New("unknown capability")

// Provider executes one kind of work. Implementations may block on external
// services and must honor context cancellation.
type Provider interface {
	Invoke(ctx context.Context, params map[string]any) (any, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, params map[string]any) (any, error)

// Invoke calls f.
func (f ProviderFunc) Invoke(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

// Capability describes one registered capability.
type Capability struct {
	// Name is the capability identifier (e.g. "search", "synthesize").
	Name string `json:"name"`
	// Description explains what the capability does.
	Description string `json:"description"`
}

type entry struct {
	cap      Capability
	provider Provider
}

// Registry maps capability names to providers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a capability with its provider. Registering an existing
// name is an error; capabilities are replaced by building a new registry.
func (r *Registry) Register(cap Capability, p Provider) error {
	if cap.Name == "" || p == nil {
		return fmt.Errorf("register capability: name and provider are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[cap.Name]; ok {
		return fmt.Errorf("register capability: %q already registered", cap.Name)
	}
	r.entries[cap.Name] = entry{cap: cap, provider: p}
	return nil
}

// RegisterFunc adds a capability backed by a plain function.
func (r *Registry) RegisterFunc(name, description string, fn ProviderFunc) error {
	return r.Register(Capability{Name: name, Description: description}, fn)
}

// Has returns true if the capability is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// List returns all registered capabilities sorted by name.
func (r *Registry) List() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]Capability, 0, len(r.entries))
	for _, e := range r.entries {
		caps = append(caps, e.cap)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Name < caps[j].Name })
	return caps
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns an immutable view of the registry for one task
// execution. Later Register calls do not affect the snapshot.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make(map[string]entry, len(r.entries))
	for name, e := range r.entries {
		entries[name] = e
	}
	return &Snapshot{entries: entries}
}

// Snapshot is a frozen view of a Registry taken at execution start.
type Snapshot struct {
	entries map[string]entry
}

// Invoke runs the named capability's provider.
func (s *Snapshot) Invoke(ctx context.Context, name string, params map[string]any) (any, error) {
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("invoke %q: %w", name, ErrUnknownCapability)
	}
	return e.provider.Invoke(ctx, params)
}

// Has returns true if the capability exists in the snapshot.
func (s *Snapshot) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Names returns the capability names in the snapshot, sorted.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
