package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Descriptor declares a tool: its name, what it does, the argument schema
// the model must satisfy, and the per-invocation timeout.
type Descriptor struct {
	Name        string
	Description string
	Arguments   Schema
	Timeout     time.Duration
}

// Tool is one named external capability the model can request.
// Implementations must observe ctx cancellation at their own boundaries;
// the executor cannot forcibly kill external work.
type Tool interface {
	Descriptor() Descriptor
	Run(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the tools available to a process. It is instance-scoped
// and injected where needed; there is no global registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering the same name twice is a wiring bug.
func (r *Registry) Register(tool Tool) error {
	name := tool.Descriptor().Name
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the descriptors for the named tools, skipping unknown
// names. Used to build the tool declarations offered to the provider.
func (r *Registry) Descriptors(names []string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			out = append(out, tool.Descriptor())
		}
	}
	return out
}
