package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oapcore/persistence/pkg/persistence/config"
	"github.com/oapcore/persistence/pkg/persistence/dao"
	"github.com/oapcore/persistence/pkg/persistence/metrics"
	"github.com/oapcore/persistence/pkg/persistence/model"
	"github.com/oapcore/persistence/pkg/persistence/registry"
	"github.com/oapcore/persistence/pkg/persistence/scheduler"
	"github.com/oapcore/persistence/pkg/persistence/worker"
)

type stubRequest struct{ mdl *model.Model }

func (r *stubRequest) Model() *model.Model { return r.mdl }

type stubItem struct{ mdl *model.Model }

func (i *stubItem) Model() *model.Model { return i.mdl }

func passthrough(item model.StorageItem) (model.PreparedRequest, error) {
	return &stubRequest{mdl: item.Model()}, nil
}

func newSink(t *testing.T) *metrics.Sink {
	t.Helper()
	sink, err := metrics.NewSink(prometheus.NewRegistry())
	require.NoError(t, err)
	return sink
}

func TestTimer_RunOnceFlushesEveryWorkerWithData(t *testing.T) {
	mdl := model.NewModel("m", model.KindMetrics, time.Minute)
	w := worker.NewMetricsWorker("m1", mdl, passthrough, false, 0, nil)
	require.NoError(t, w.Offer(&stubItem{mdl: mdl}))

	regs := registry.NewRegistries()
	regs.Metrics.Register(w)

	cfg := config.WithDefaults(&config.Config{PrepareThreads: 2})
	timer := scheduler.New(regs, cfg, nil)

	d := dao.NewMemoryDAO()
	sink := newSink(t)
	timer.Start(d, sink)
	defer timer.Stop(time.Second)

	require.NoError(t, timer.RunOnce(context.Background()))
	assert.Equal(t, 1, d.FlushCount())
}

func TestTimer_RunOnceSkipsEmptyWorkersWithoutTouchingDAO(t *testing.T) {
	mdl := model.NewModel("m", model.KindMetrics, time.Minute)
	w := worker.NewMetricsWorker("m1", mdl, passthrough, false, 0, nil)

	regs := registry.NewRegistries()
	regs.Metrics.Register(w)

	cfg := config.WithDefaults(&config.Config{PrepareThreads: 2})
	timer := scheduler.New(regs, cfg, nil)
	d := dao.NewMemoryDAO()
	sink := newSink(t)
	timer.Start(d, sink)
	defer timer.Stop(time.Second)

	require.NoError(t, timer.RunOnce(context.Background()))
	assert.Equal(t, 0, d.FlushCount(), "a worker with no buffered items must not trigger a flush")
}

func TestTimer_RunOnceAggregatesFirstFailureAndIncrementsErrorCounter(t *testing.T) {
	mdl1 := model.NewModel("m1", model.KindMetrics, time.Minute)
	mdl2 := model.NewModel("m2", model.KindMetrics, time.Minute)
	w1 := worker.NewMetricsWorker("w1", mdl1, passthrough, false, 0, nil)
	w2 := worker.NewMetricsWorker("w2", mdl2, passthrough, false, 0, nil)
	require.NoError(t, w1.Offer(&stubItem{mdl: mdl1}))
	require.NoError(t, w2.Offer(&stubItem{mdl: mdl2}))

	regs := registry.NewRegistries()
	regs.Metrics.Register(w1)
	regs.Metrics.Register(w2)

	cfg := config.WithDefaults(&config.Config{PrepareThreads: 2})
	timer := scheduler.New(regs, cfg, nil)

	d := dao.NewMemoryDAO()
	d.FailNext(func([]model.PreparedRequest) error { return errors.New("flush failed") })
	sink := newSink(t)
	timer.Start(d, sink)
	defer timer.Stop(time.Second)

	err := timer.RunOnce(context.Background())
	require.Error(t, err)

	m := &dto.Metric{}
	require.NoError(t, sink.ErrorCount.Write(m))
	assert.Equal(t, float64(1), m.GetCounter().GetValue(), "two failed flushes in one tick must count as one error")
}

func TestTimer_RunOnceBoundsConcurrentBuildsByPrepareThreads(t *testing.T) {
	const workers = 6
	const maxConcurrent = 2

	regs := registry.NewRegistries()

	var current int32
	var maxSeen int32
	var mu sync.Mutex
	releases := make(chan struct{})

	for i := 0; i < workers; i++ {
		id := i
		mdl := model.NewModel("m", model.KindMetrics, time.Minute)
		w := &blockingWorker{
			id:  id,
			mdl: mdl,
			onBuild: func() {
				n := atomic.AddInt32(&current, 1)
				mu.Lock()
				if n > maxSeen {
					maxSeen = n
				}
				mu.Unlock()
				<-releases
				atomic.AddInt32(&current, -1)
			},
		}
		regs.Metrics.Register(w)
	}

	cfg := config.WithDefaults(&config.Config{PrepareThreads: maxConcurrent})
	timer := scheduler.New(regs, cfg, nil)
	d := dao.NewMemoryDAO()
	sink := newSink(t)
	timer.Start(d, sink)
	defer timer.Stop(time.Second)

	done := make(chan struct{})
	go func() {
		timer.RunOnce(context.Background())
		close(done)
	}()

	// Release workers one at a time, giving the pool a chance to admit the
	// next one and observe the high-water mark before releasing further.
	for i := 0; i < workers; i++ {
		time.Sleep(10 * time.Millisecond)
		releases <- struct{}{}
	}
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, int(maxSeen), maxConcurrent, "no more than PrepareThreads builds should run concurrently")
}

// blockingWorker is a minimal worker.Worker used only to observe build
// concurrency; it never buffers real items.
type blockingWorker struct {
	id      int
	mdl     *model.Model
	onBuild func()
}

func (w *blockingWorker) ID() string         { return fmtID(w.id) }
func (w *blockingWorker) Kind() model.Kind   { return model.KindMetrics }
func (w *blockingWorker) Offer(model.StorageItem) error { return nil }
func (w *blockingWorker) EndOfRound(context.Context)    {}

func (w *blockingWorker) BuildBatchRequests(ctx context.Context) ([]model.PreparedRequest, error) {
	w.onBuild()
	return nil, nil
}

func fmtID(i int) string {
	const letters = "0123456789"
	if i < 10 {
		return "blocking-" + string(letters[i])
	}
	return "blocking-n"
}
