// Package scheduler implements the persistence timer from spec.md §4.4
// (C6): the scheduler that snapshots every registered worker, fans out a
// bounded pool of build tasks, flushes each non-empty batch through the
// Batch DAO, and reports latency/error metrics while guaranteeing strict
// tick sequencing.
//
// The bounded build pool is grounded on the teacher's
// pkg/core/blocks/worker_pool.go (a semaphore-style cap on concurrent work),
// and the per-tick fan-in on the wg-plus-error-slice pattern in
// pkg/infrastructure/workers/simple_pool.go. The "started" idempotence latch
// replaces the source's process-wide singleton per spec.md §9's design note.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oapcore/persistence/pkg/logging"
	"github.com/oapcore/persistence/pkg/persistence/config"
	"github.com/oapcore/persistence/pkg/persistence/dao"
	"github.com/oapcore/persistence/pkg/persistence/metrics"
	"github.com/oapcore/persistence/pkg/persistence/model"
	"github.com/oapcore/persistence/pkg/persistence/perrors"
	"github.com/oapcore/persistence/pkg/persistence/registry"
	"github.com/oapcore/persistence/pkg/persistence/worker"
)

// Timer is the persistence scheduler. The zero value is not usable; build
// one with New.
type Timer struct {
	cfg        *config.Config
	registries *registry.Registries
	log        *logging.Logger

	buildSlots chan struct{}

	mu      sync.Mutex
	started bool
	dao     dao.BatchDAO
	sink    *metrics.Sink

	stopCh    chan struct{}
	stoppedCh chan struct{}

	now func() time.Time
}

// New constructs a Timer bound to registries, with a build pool sized
// cfg.PrepareThreads. It does not start the periodic tick; call Start.
func New(registries *registry.Registries, cfg *config.Config, log *logging.Logger) *Timer {
	cfg = config.WithDefaults(cfg)
	if log == nil {
		log = logging.Default()
	}
	return &Timer{
		cfg:        cfg,
		registries: registries,
		log:        log.With("component", "persistence_timer"),
		buildSlots: make(chan struct{}, cfg.PrepareThreads),
		now:        time.Now,
	}
}

// Start binds the DAO and metrics sink and, on the first call, launches the
// periodic tick goroutine with the fixed initial delay and fixed-delay
// period from spec.md §4.4. Successive calls re-bind the DAO/sink
// references but are otherwise no-ops, guarded by the started flag
// (spec.md §4.4's idempotence requirement).
func (t *Timer) Start(d dao.BatchDAO, sink *metrics.Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dao = d
	t.sink = sink

	if t.started {
		return
	}
	t.started = true
	t.stopCh = make(chan struct{})
	t.stoppedCh = make(chan struct{})

	go t.run()
}

// run drives the fixed-delay tick loop: the next tick is scheduled only
// after the previous tick's aggregate future completes (spec.md §4.4,
// §5's "strict sequential ticks").
func (t *Timer) run() {
	defer close(t.stoppedCh)

	delay := time.NewTimer(t.cfg.InitialDelay)
	defer delay.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-delay.C:
			t.RunOnce(context.Background())
			delay.Reset(t.cfg.PersistentPeriod)
		}
	}
}

// Stop signals the tick loop to exit and waits up to timeout for it to do
// so. In-flight ticks are not cancelled (spec.md §5); the DAO is
// responsible for the durability of anything already accepted. Stop is a
// no-op if Start was never called.
func (t *Timer) Stop(timeout time.Duration) error {
	t.mu.Lock()
	started := t.started
	stopCh := t.stopCh
	stoppedCh := t.stoppedCh
	t.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}

	select {
	case <-stoppedCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("persistence timer: did not stop within %s", timeout)
	}
}

// RunOnce executes exactly one tick of the algorithm in spec.md §4.4: it
// snapshots every registered worker, builds and flushes each one's batch
// (bounded to PrepareThreads concurrent builds), and returns the tick's
// aggregate error — the first cause, if any worker's build or flush failed.
// Exposed as a public method so tests can drive ticks deterministically
// instead of waiting on wall-clock timing.
func (t *Timer) RunOnce(ctx context.Context) error {
	t.mu.Lock()
	d, sink := t.dao, t.sink
	t.mu.Unlock()

	start := t.now()
	allTimer := sink.StartAll()
	defer allTimer.Close()

	workers := t.registries.Snapshot()

	var wg sync.WaitGroup
	resultCh := make(chan tickResult, len(workers))

	for _, w := range workers {
		wg.Add(1)
		go func(w worker.Worker) {
			defer wg.Done()
			n, err := t.runWorker(ctx, d, sink, w)
			resultCh <- tickResult{flushed: n, err: err}
		}(w)
	}

	wg.Wait()
	close(resultCh)

	var firstErr error
	flushed := 0
	for r := range resultCh {
		flushed += r.flushed
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}

	if firstErr != nil {
		sink.IncError()
		t.log.Error("tick failed", "err", firstErr, "workers", len(workers))
	}
	t.log.Info("tick complete",
		"workers", len(workers),
		"flushed", flushed,
		"duration", t.now().Sub(start),
		"error", firstErr != nil,
	)
	return firstErr
}

// tickResult carries one worker's outcome back to RunOnce's fan-in: how many
// requests it flushed (0 for an empty or failed batch) and its error, if any.
type tickResult struct {
	flushed int
	err     error
}

// runWorker runs the two-phase build/execute pipeline for one worker
// (spec.md §4.4, step 3). The build phase is bounded by the semaphore
// buildSlots; the execute phase (DAO.Flush) runs outside it, since flushing
// is I/O-bound and delegated to the DAO's own concurrency (spec.md §5).
func (t *Timer) runWorker(ctx context.Context, d dao.BatchDAO, sink *metrics.Sink, w worker.Worker) (int, error) {
	select {
	case t.buildSlots <- struct{}{}:
	case <-ctx.Done():
		return 0, perrors.NewWorkerError(w.ID(), ctx.Err())
	}

	prepTimer := sink.StartPrepare()
	requests, buildErr := func() (reqs []model.PreparedRequest, err error) {
		defer func() {
			if r := recover(); r != nil {
				reqs, err = nil, fmt.Errorf("build task panicked: %v", r)
			}
		}()
		reqs, err = w.BuildBatchRequests(ctx)
		w.EndOfRound(ctx)
		return reqs, err
	}()
	prepTimer.Close()

	<-t.buildSlots

	if buildErr != nil {
		return 0, perrors.NewWorkerError(w.ID(), buildErr)
	}
	if len(requests) == 0 {
		return 0, nil
	}

	execTimer := sink.StartExecute()
	defer execTimer.Close()

	future := d.Flush(ctx, requests)
	if err := future.Wait(ctx); err != nil {
		return 0, perrors.NewFlushError(w.ID(), err)
	}
	return len(requests), nil
}
