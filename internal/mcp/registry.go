// Package mcp implements the dispatch-and-streaming core of the memory
// protocol: a tool registry for request/response operations, a resource
// registry with longest-prefix path resolution for streamed reads, the
// dispatcher that normalizes every outcome into a wire envelope, and the
// pacing-aware streaming engine.
//
// Both registries are populated once during process initialization and
// treated as read-only afterwards; lookups during serving need no
// synchronization, but registration is still guarded so misuse cannot
// corrupt the maps.
package mcp

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// ToolHandler is pure business logic: it performs one or more repository
// calls with the supplied arguments and returns a plain result value or
// an error. Handlers never produce wire-level error shapes; every
// failure converges in the dispatcher.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// ToolRegistry maps tool names to handlers.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]ToolHandler
	logger *slog.Logger
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{
		tools:  make(map[string]ToolHandler),
		logger: logger,
	}
}

// Register associates a handler with a name. Re-registering an existing
// name replaces the previous handler (last registration wins); the
// overwrite is logged since it is almost always a wiring mistake.
func (r *ToolRegistry) Register(name string, h ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		r.logger.Warn("tool re-registered, previous handler replaced", "tool", name)
	}
	r.tools[name] = h
}

// Get returns the handler registered under name.
func (r *ToolRegistry) Get(name string) (ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.tools[name]
	return h, ok
}

// Names returns all registered tool names sorted alphabetically.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
