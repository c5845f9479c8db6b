// Package registry implements the process-wide worker registries from
// spec.md §4 (C5): append-only lists of persistence workers, keyed by
// stream kind, read under a many-reader/rare-writer discipline. Modeled on
// the teacher's backend registry (pkg/storage/registry.go), which uses the
// same sync.RWMutex-guarded map-of-constructors shape for a conceptually
// identical "register once at startup, read often" lifecycle.
package registry

import (
	"sync"

	"github.com/oapcore/persistence/pkg/persistence/worker"
)

// Registry is a process-wide, append-only list of persistence workers.
// Workers are registered at startup, when a stream is first observed, and
// are never removed during normal operation (spec.md §3).
type Registry struct {
	mu      sync.RWMutex
	workers []worker.Worker
	byID    map[string]worker.Worker
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]worker.Worker)}
}

// Register adds w to the registry if its ID has not already been
// registered. Returns false without modifying the registry if w.ID() is
// already present, so callers can treat "first observation of a stream" as
// idempotent.
func (r *Registry) Register(w worker.Worker) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[w.ID()]; exists {
		return false
	}
	r.byID[w.ID()] = w
	r.workers = append(r.workers, w)
	return true
}

// Snapshot returns the current list of registered workers. The returned
// slice is a copy; callers may iterate it without holding any lock, and
// iteration order is not significant (spec.md §4.4, step 2).
func (r *Registry) Snapshot() []worker.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]worker.Worker, len(r.workers))
	copy(out, r.workers)
	return out
}

// Len reports the number of registered workers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Registries is the union of per-kind registries the scheduler snapshots
// each tick: one for metrics-stream workers, one for Top-N-stream workers
// (spec.md's C5, "Metrics Stream Processor / Top-N Stream Processor").
type Registries struct {
	Metrics *Registry
	TopN    *Registry
}

// NewRegistries returns an empty Metrics/TopN pair.
func NewRegistries() *Registries {
	return &Registries{Metrics: New(), TopN: New()}
}

// Snapshot returns the union of every registered worker across both
// registries, in no particular order (spec.md §4.4, step 2).
func (r *Registries) Snapshot() []worker.Worker {
	out := make([]worker.Worker, 0, r.Metrics.Len()+r.TopN.Len())
	out = append(out, r.Metrics.Snapshot()...)
	out = append(out, r.TopN.Snapshot()...)
	return out
}
