package mcp

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/memvault/memvault/internal/repository"
)

// Generator lazily produces the item sequence for a resource read. It
// receives the full requested path, including the prefix it was matched
// on, and parses its own remaining segments. A returned *Error reports
// an unparseable path before any item is produced; any other error is a
// handler-side failure.
type Generator func(ctx context.Context, path string) (repository.Iterator, error)

// ResourceRegistry maps literal path prefixes to generators and resolves
// request paths by longest-prefix match.
type ResourceRegistry struct {
	mu       sync.RWMutex
	prefixes map[string]Generator
}

// NewResourceRegistry creates an empty resource registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{prefixes: make(map[string]Generator)}
}

// Register associates a path prefix with a generator.
func (r *ResourceRegistry) Register(prefix string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes[prefix] = g
}

// Resolve selects, among all registered prefixes that are literal string
// prefixes of path, the one with the longest prefix. A shorter matching
// prefix is never chosen over a longer one.
func (r *ResourceRegistry) Resolve(path string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best    Generator
		bestLen = -1
	)
	for prefix, g := range r.prefixes {
		if strings.HasPrefix(path, prefix) && len(prefix) > bestLen {
			best = g
			bestLen = len(prefix)
		}
	}
	return best, bestLen >= 0
}

// Prefixes returns all registered prefixes, longest first.
func (r *ResourceRegistry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.prefixes))
	for p := range r.prefixes {
		out = append(out, p)
	}
	// Longest first, then lexical, for stable output.
	slices.SortFunc(out, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return cmp.Compare(a, b)
	})
	return out
}
