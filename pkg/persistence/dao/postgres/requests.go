package postgres

import (
	"github.com/oapcore/persistence/pkg/persistence/model"
)

// MetricsUpsertRequest is a Request that upserts one aggregated metric
// point into metrics_all, keyed by (entity, time bucket). Grounded on the
// parameterized INSERT in the teacher's outbox.go CreateOutboxEvent.
type MetricsUpsertRequest struct {
	mdl        *model.Model
	EntityID   string
	TimeBucket int64
	Value      float64
}

// NewMetricsUpsertRequest builds a MetricsUpsertRequest for mdl.
func NewMetricsUpsertRequest(mdl *model.Model, entityID string, timeBucket int64, value float64) *MetricsUpsertRequest {
	return &MetricsUpsertRequest{mdl: mdl, EntityID: entityID, TimeBucket: timeBucket, Value: value}
}

func (r *MetricsUpsertRequest) Model() *model.Model { return r.mdl }

func (r *MetricsUpsertRequest) SQL() (string, []any) {
	const stmt = `
		INSERT INTO metrics_all (entity_id, time_bucket, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, time_bucket) DO UPDATE SET value = EXCLUDED.value`
	return stmt, []any{r.EntityID, r.TimeBucket, r.Value}
}

// TopNInsertRequest is a Request that appends one Top-N record. Top-N
// snapshots are write-once per report period (spec.md §4.2), so this is a
// plain INSERT rather than the metrics upsert above.
type TopNInsertRequest struct {
	mdl        *model.Model
	ID         string
	Statement  string
	LatencyMs  int64
	TimeBucket int64
}

// NewTopNInsertRequest builds a TopNInsertRequest for mdl.
func NewTopNInsertRequest(mdl *model.Model, id, statement string, latencyMs, timeBucket int64) *TopNInsertRequest {
	return &TopNInsertRequest{mdl: mdl, ID: id, Statement: statement, LatencyMs: latencyMs, TimeBucket: timeBucket}
}

func (r *TopNInsertRequest) Model() *model.Model { return r.mdl }

func (r *TopNInsertRequest) SQL() (string, []any) {
	const stmt = `
		INSERT INTO top_n_record (id, statement, latency_ms, time_bucket)
		VALUES ($1, $2, $3, $4)`
	return stmt, []any{r.ID, r.Statement, r.LatencyMs, r.TimeBucket}
}

var _ Request = (*MetricsUpsertRequest)(nil)
var _ Request = (*TopNInsertRequest)(nil)
