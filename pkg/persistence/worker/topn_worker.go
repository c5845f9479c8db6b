package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oapcore/persistence/pkg/logging"
	"github.com/oapcore/persistence/pkg/persistence/cache"
	"github.com/oapcore/persistence/pkg/persistence/model"
	"github.com/oapcore/persistence/pkg/persistence/perrors"
)

// ErrWorkerStopped is returned by Offer once Stop has been called.
var ErrWorkerStopped = errors.New("worker: topn worker stopped")

// TopNWorker is the persistence worker for sampled-peak streams (spec.md
// §4.2). It extends the base worker contract with a bounded single-producer/
// single-consumer queue drained by one dedicated consumer goroutine, and a
// report period gate: BuildBatchRequests returns an empty batch unless at
// least ReportPeriod has elapsed since the last non-empty return.
type TopNWorker struct {
	id   string
	mdl  *model.Model
	mpr  Mapper
	log  *logging.Logger
	less cache.Less

	reportPeriod time.Duration
	now          func() time.Time

	queue chan model.StorageItem
	cache *cache.TopNCache

	stopOnce sync.Once
	stopped  chan struct{}
	drained  sync.WaitGroup

	mu         sync.Mutex
	lastReport time.Time
}

// NewTopNWorker constructs a Top-N worker of the given per-buffer capacity,
// ranking items with less and gating non-empty batches by reportPeriod. The
// inbound queue is sized queueCapacity (spec.md §4.2's default 1000). The
// worker's report clock starts at construction time, matching S3 in
// spec.md §8 ("lastReport = startup" for the first tick).
func NewTopNWorker(id string, mdl *model.Model, mapper Mapper, less cache.Less, capacity, queueCapacity int, reportPeriod time.Duration, log *logging.Logger) *TopNWorker {
	if log == nil {
		log = logging.Default()
	}
	w := &TopNWorker{
		id:           id,
		mdl:          mdl,
		mpr:          mapper,
		log:          log.With("worker", id),
		less:         less,
		reportPeriod: reportPeriod,
		now:          time.Now,
		queue:        make(chan model.StorageItem, queueCapacity),
		cache:        cache.NewTopNCache(capacity, less),
		stopped:      make(chan struct{}),
	}
	w.lastReport = w.now()

	w.drained.Add(1)
	go w.consume()

	return w
}

// consume is the single dedicated consumer draining the inbound queue into
// the bounded top-N cache, per spec.md §4.2. It never observes w.queue
// closed — Stop signals shutdown through w.stopped instead, since closing a
// channel that concurrent Offer callers may still be sending on would race.
// Once stopped, it drains whatever is already buffered before exiting.
func (w *TopNWorker) consume() {
	defer w.drained.Done()
	for {
		select {
		case item := <-w.queue:
			w.cache.Offer(item)
		case <-w.stopped:
			for {
				select {
				case item := <-w.queue:
					w.cache.Offer(item)
				default:
					return
				}
			}
		}
	}
}

// ID implements Worker.
func (w *TopNWorker) ID() string { return w.id }

// Kind implements Worker.
func (w *TopNWorker) Kind() model.Kind { return model.KindTopN }

// Offer implements Buffered: a blocking send onto the inbound queue. If the
// consumer has died, the queue fills and this call blocks until Stop is
// called; the item is not dropped, and nothing is logged for this condition.
func (w *TopNWorker) Offer(item model.StorageItem) error {
	select {
	case <-w.stopped:
		return ErrWorkerStopped
	default:
	}

	select {
	case w.queue <- item:
		return nil
	case <-w.stopped:
		return ErrWorkerStopped
	}
}

// BuildBatchRequests implements BatchBuildable with the report-period gate
// from spec.md §4.2: it returns an empty batch unless now-lastReport is at
// least the configured report period, in which case it updates lastReport
// and proceeds with the normal drain/build.
func (w *TopNWorker) BuildBatchRequests(ctx context.Context) ([]model.PreparedRequest, error) {
	now := w.now()

	w.mu.Lock()
	elapsed := now.Sub(w.lastReport) >= w.reportPeriod
	if elapsed {
		w.lastReport = now
	}
	w.mu.Unlock()

	if !elapsed {
		return nil, nil
	}

	items := w.cache.Read()
	if len(items) == 0 {
		return nil, nil
	}

	reqs := make([]model.PreparedRequest, 0, len(items))
	for _, item := range items {
		req, err := w.mpr(item)
		if err != nil {
			buildErr := perrors.NewBuildError(w.id, fmt.Sprintf("%T", item), err)
			w.log.Error("dropping item after build failure", "err", buildErr)
			continue
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// EndOfRound is a no-op: the double buffer already bounds memory to 2*N,
// per spec.md §4.2.
func (w *TopNWorker) EndOfRound(ctx context.Context) {}

// Stop signals the consumer goroutine to drain the inbound queue and exit,
// bounded by timeout. The queue itself is never closed — an Offer in flight
// when Stop runs must still be able to select on w.stopped without racing a
// send on a closed channel. Safe to call more than once.
func (w *TopNWorker) Stop(timeout time.Duration) error {
	w.stopOnce.Do(func() {
		close(w.stopped)
	})

	done := make(chan struct{})
	go func() {
		w.drained.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("topn worker %s: consumer did not drain within %s", w.id, timeout)
	}
}
