package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oapcore/persistence/pkg/persistence/cache"
	"github.com/oapcore/persistence/pkg/persistence/model"
	"github.com/oapcore/persistence/pkg/persistence/worker"
)

func neverEvict(a, b model.StorageItem) bool { return false }

func TestTopNWorker_BuildBatchRequestsGatedByReportPeriod(t *testing.T) {
	w := worker.NewTopNWorker("topn1", model.NewModel("m", model.KindTopN, 10*time.Minute), passthroughMapper, cache.Less(neverEvict), 10, 100, 50*time.Millisecond, nil)

	require.NoError(t, w.Offer(&testItem{name: "a"}))

	// Immediately after construction, the report period has not elapsed.
	reqs, err := w.BuildBatchRequests(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reqs, "no report is due before the report period elapses")

	time.Sleep(60 * time.Millisecond)

	reqs, err = w.BuildBatchRequests(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, reqs, "a report is due once the period has elapsed")

	require.NoError(t, w.Stop(time.Second))
}

func TestTopNWorker_OfferAfterStopReturnsError(t *testing.T) {
	w := worker.NewTopNWorker("topn1", model.NewModel("m", model.KindTopN, 10*time.Minute), passthroughMapper, cache.Less(neverEvict), 10, 100, time.Minute, nil)
	require.NoError(t, w.Stop(time.Second))

	err := w.Offer(&testItem{name: "late"})
	assert.ErrorIs(t, err, worker.ErrWorkerStopped)
}

func TestTopNWorker_EndOfRoundIsNoOp(t *testing.T) {
	w := worker.NewTopNWorker("topn1", model.NewModel("m", model.KindTopN, 10*time.Minute), passthroughMapper, cache.Less(neverEvict), 10, 100, time.Minute, nil)
	defer w.Stop(time.Second)

	assert.NotPanics(t, func() { w.EndOfRound(context.Background()) })
}
