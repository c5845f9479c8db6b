// Package worker implements the persistence worker contract from spec.md
// §4.1/§4.2 (C3/C4): buffer maintenance, batch-request construction, and
// end-of-round cleanup. Per spec.md §9's "Design Notes", the teacher's
// inheritance-style worker hierarchy is replaced with a small capability
// set — Buffered, BatchBuildable, Recoverable — composed by the two
// concrete workers below instead of an abstract base class.
package worker

import (
	"context"

	"github.com/oapcore/persistence/pkg/persistence/model"
)

// Buffered accepts items from upstream aggregation workers.
type Buffered interface {
	// Offer inserts item into the worker's cache. Implementations must not
	// block indefinitely on a healthy consumer; spec.md §4.1 requires this
	// to be non-blocking for metrics-style workers, while a Top-N worker's
	// bounded queue may apply backpressure once its consumer has died
	// (spec.md §4.2).
	Offer(item model.StorageItem) error
}

// BatchBuildable drains a worker's cache into prepared storage requests.
type BatchBuildable interface {
	// BuildBatchRequests atomically drains the cache and converts every
	// item into a model.PreparedRequest. It must not block on I/O and must
	// not abort on a single item's failure — spec.md §4.1/§4.2.
	BuildBatchRequests(ctx context.Context) ([]model.PreparedRequest, error)
}

// Recoverable performs end-of-round cleanup of any auxiliary state a worker
// keeps beyond its cache (e.g. a session-expiry map). The base contract is
// "purge anything whose freshness window has elapsed"; Top-N workers
// implement this as a no-op since their double buffer already bounds memory.
type Recoverable interface {
	EndOfRound(ctx context.Context)
}

// Worker is the full persistence worker contract the scheduler drives.
type Worker interface {
	Buffered
	BatchBuildable
	Recoverable

	// ID identifies the worker for logs, metrics labels, and the at-most-
	// one-active-build invariant (spec.md §8, invariant 1).
	ID() string
	// Kind reports which stream family this worker belongs to.
	Kind() model.Kind
}

// Mapper converts one drained StorageItem into a driver-specific
// PreparedRequest. A Mapper failure is a per-item BuildFailure (spec.md
// §7): the caller logs it and skips the item; the rest of the batch
// proceeds.
type Mapper func(item model.StorageItem) (model.PreparedRequest, error)
