// Package model defines the data that flows through the persistence core:
// opaque stream items, the prepared requests a worker builds from them, and
// the immutable schema descriptor ("Model") a worker writes against.
//
// None of these types are inspected by the scheduler (pkg/persistence/scheduler)
// or the cache (pkg/persistence/cache); they are carried as opaque values, per
// spec.md §3.
package model

import "time"

// Kind distinguishes the two stream families the core persists. Models carry
// it and workers report it through Worker.Kind; the registries
// (pkg/persistence/registry) do not read it, since callers choose the Metrics
// or TopN registry themselves, and no metric is labelled with it.
type Kind string

const (
	// KindMetrics identifies aggregation-result workers (unbounded cache).
	KindMetrics Kind = "metrics"
	// KindTopN identifies sampled-peak workers (bounded, report-gated cache).
	KindTopN Kind = "topn"
)

// StorageItem is produced upstream by aggregation workers and handed to a
// persistence worker's Offer method. The core never inspects its fields;
// concrete worker implementations type-assert it to their own item type
// before building a PreparedRequest.
type StorageItem interface {
	// Model identifies which schema/table this item belongs to.
	Model() *Model
}

// PreparedRequest is an opaque, driver-specific write descriptor produced by
// a worker's storage mapper (e.g. an INSERT's bound parameters). The core
// treats it as a value with no identity; only the Batch DAO interprets it.
type PreparedRequest interface {
	// Model identifies the target table/index, mirroring the item it was
	// built from. Drivers that batch requests by table use this to group
	// them before sending.
	Model() *Model
}

// Model is an immutable schema descriptor identifying the target table or
// index for a worker. It is created once per scope at system boot by an
// external model manager (out of scope for this core, per spec.md §1) and
// never mutated during persistence; the core holds only a reference.
type Model struct {
	// Name is the storage-facing identifier (e.g. a table name).
	Name string
	// Kind is the stream family this model belongs to.
	Kind Kind
	// TimeBucket is the aggregation granularity the model was created for
	// (e.g. one minute, one hour); carried for the driver's convenience and
	// never interpreted by the scheduler.
	TimeBucket time.Duration
}

// NewModel constructs a Model descriptor. Kept as a plain constructor rather
// than a registry lookup: model creation/reflection is explicitly out of
// scope for this core (spec.md §1, §9).
func NewModel(name string, kind Kind, timeBucket time.Duration) *Model {
	return &Model{Name: name, Kind: kind, TimeBucket: timeBucket}
}
