// Package indexer defines the driver plug-point for release indexers
// and the registry the search orchestrator consumes.
package indexer

import (
	"context"
	"sort"
	"sync"

	"github.com/keonramses/cinephage/internal/indexer/types"
)

// Driver is the plug-point a concrete indexer implementation satisfies.
// Implementations are expected to be safe for concurrent use.
type Driver interface {
	ID() int64
	Name() string
	BaseURL() string
	Priority() int
	Capabilities() types.Capabilities
	InteractiveSearchEnabled() bool
	AutomaticSearchEnabled() bool

	// Search executes a search and returns raw results. Implementations
	// classify failures using the error codes in this package.
	Search(ctx context.Context, criteria types.SearchCriteria) ([]types.ReleaseResult, error)
}

// Registry holds the configured indexer drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[int64]Driver
}

// NewRegistry creates an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[int64]Driver)}
}

// Register adds or replaces a driver.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.ID()] = d
}

// Unregister removes a driver.
func (r *Registry) Unregister(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drivers, id)
}

// Get returns the driver with the given id, if registered.
func (r *Registry) Get(id int64) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[id]
	return d, ok
}

// List returns all registered drivers ordered by id for determinism.
func (r *Registry) List() []Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
