package dao

import (
	"context"
	"sync"

	"github.com/oapcore/persistence/pkg/persistence/model"
)

// MemoryDAO is a BatchDAO that appends every flushed batch to an in-memory
// log. It is used by the scheduler's unit tests and the demo command in
// place of a real storage driver; it can also be configured to fail,
// exercising the FlushError path from spec.md §7.
type MemoryDAO struct {
	mu      sync.Mutex
	batches [][]model.PreparedRequest
	failFn  func([]model.PreparedRequest) error
	delay   func()
}

// NewMemoryDAO returns an empty MemoryDAO that always succeeds.
func NewMemoryDAO() *MemoryDAO {
	return &MemoryDAO{}
}

// FailNext installs a predicate that, when it returns a non-nil error for a
// given batch, fails that flush instead of recording it.
func (d *MemoryDAO) FailNext(fn func([]model.PreparedRequest) error) {
	d.mu.Lock()
	d.failFn = fn
	d.mu.Unlock()
}

// SlowDown installs a function invoked synchronously before every flush
// resolves, used to simulate a slow storage backend (spec.md §8, S6).
func (d *MemoryDAO) SlowDown(delay func()) {
	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()
}

// Flush implements BatchDAO by recording the batch (or failing it) on a
// background goroutine, returning immediately with a Future.
func (d *MemoryDAO) Flush(ctx context.Context, requests []model.PreparedRequest) Future {
	future, resolve := NewFuture()

	go func() {
		d.mu.Lock()
		delay := d.delay
		failFn := d.failFn
		d.mu.Unlock()

		if delay != nil {
			delay()
		}

		if failFn != nil {
			if err := failFn(requests); err != nil {
				resolve(err)
				return
			}
		}

		d.mu.Lock()
		d.batches = append(d.batches, requests)
		d.mu.Unlock()
		resolve(nil)
	}()

	return future
}

// Batches returns every batch successfully recorded so far, for test
// assertions.
func (d *MemoryDAO) Batches() [][]model.PreparedRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]model.PreparedRequest, len(d.batches))
	copy(out, d.batches)
	return out
}

// FlushCount returns the number of successfully recorded batches.
func (d *MemoryDAO) FlushCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}
