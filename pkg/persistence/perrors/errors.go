// Package perrors holds the small, typed error taxonomy described in
// spec.md §7: per-item build failures that are recovered locally, and
// per-tick flush/worker failures that surface as a single tick-level error.
// Modeled on the teacher's classifier in pkg/storage/errors.go, trimmed to
// the two shapes this core actually needs and built around %w wrapping
// instead of a bespoke error-code enum.
package perrors

import "fmt"

// BuildError wraps a failure converting one cached item into a
// model.PreparedRequest. It is always logged and the offending item is
// dropped; it must never abort the rest of the batch.
type BuildError struct {
	WorkerID string
	ItemType string
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: item %s: %v", e.WorkerID, e.ItemType, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// NewBuildError constructs a BuildError for the given worker and item type.
func NewBuildError(workerID, itemType string, err error) *BuildError {
	return &BuildError{WorkerID: workerID, ItemType: itemType, Err: err}
}

// FlushError wraps a Batch DAO failure for one worker's batch in one tick.
// It causes the tick's aggregate future to fail; the scheduler increments
// the error counter once per tick regardless of how many workers' flushes
// failed.
type FlushError struct {
	WorkerID string
	Err      error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush %s: %v", e.WorkerID, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

// NewFlushError constructs a FlushError for the given worker.
func NewFlushError(workerID string, err error) *FlushError {
	return &FlushError{WorkerID: workerID, Err: err}
}

// WorkerError wraps any non-build, non-flush failure raised by a worker's
// build task (e.g. a panic recovered into an error). It is handled
// identically to FlushError by the scheduler.
type WorkerError struct {
	WorkerID string
	Err      error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s: %v", e.WorkerID, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// NewWorkerError constructs a WorkerError for the given worker.
func NewWorkerError(workerID string, err error) *WorkerError {
	return &WorkerError{WorkerID: workerID, Err: err}
}
