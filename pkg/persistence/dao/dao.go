// Package dao defines the Batch DAO boundary from spec.md §4.3 (C1): the
// single interface every storage driver implements, decoupling the
// scheduler from any particular column store, search index, or relational
// database. A Postgres implementation lives in the postgres subpackage;
// tests and the demo command use the in-memory implementation below.
package dao

import (
	"context"

	"github.com/oapcore/persistence/pkg/persistence/model"
)

// Future represents the asynchronous completion of one flush. It is
// satisfied by calling Wait, which blocks until the underlying operation
// finishes and returns its error (nil on success). Implementations must
// resolve Wait exactly once; it is safe to call Wait from exactly one
// goroutine, matching how the scheduler chains it onto a single build task.
type Future interface {
	Wait(ctx context.Context) error
}

// BatchDAO is the storage driver boundary: a single operation that accepts a
// list of prepared requests and returns a future signalling completion.
// Implementations are free to split, reorder, and parallelize internally;
// idempotence is not guaranteed by this interface (spec.md §4.3) — upstream
// workers are expected to key their writes deterministically.
type BatchDAO interface {
	Flush(ctx context.Context, requests []model.PreparedRequest) Future
}

// chanFuture is the shared Future implementation backing both the
// in-memory DAO and the Postgres DAO: a result computed on a background
// goroutine and delivered over a buffered channel so Flush never blocks the
// caller.
type chanFuture struct {
	done chan error
}

// NewFuture returns a Future together with the resolve function its
// producer calls exactly once when the asynchronous work completes.
func NewFuture() (Future, func(error)) {
	f := &chanFuture{done: make(chan error, 1)}
	return f, func(err error) { f.done <- err }
}

func (f *chanFuture) Wait(ctx context.Context) error {
	select {
	case err := <-f.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
