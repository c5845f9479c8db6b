// Package metrics implements the instrumentation contract from spec.md §6
// (C2): the four stable-named Prometheus instruments the scheduler reports
// against, plus a scoped-timer primitive that guarantees a histogram sample
// is recorded on every exit path — success, early return, or failure
// (spec.md §9). client_golang is only an indirect dependency of the teacher
// repo (pulled in transitively); it is promoted to a direct one here, the
// same way jordigilh/kubernaut's pkg/metrics registers client_golang
// collectors directly for its own service metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "persistence_timer"

// Sink owns the four instruments named in spec.md §6 and registers them
// against a caller-supplied registerer. Exposing them over HTTP is left to
// the caller — spec.md §1 puts the wire-level receivers out of scope for
// this core.
type Sink struct {
	ErrorCount     prometheus.Counter
	PrepareLatency prometheus.Histogram
	ExecuteLatency prometheus.Histogram
	AllLatency     prometheus.Histogram
}

// NewSink builds and registers the four instruments against reg. Passing a
// prometheus.NewRegistry() in tests keeps each test's metrics isolated; the
// demo command registers against prometheus.DefaultRegisterer.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		ErrorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: namespace + "_bulk_error_count",
			Help: "Number of persistence ticks whose aggregate future failed.",
		}),
		PrepareLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    namespace + "_bulk_prepare_latency",
			Help:    "Duration of a single worker's build-batch-requests stage.",
			Buckets: prometheus.DefBuckets,
		}),
		ExecuteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    namespace + "_bulk_execute_latency",
			Help:    "Duration of a single worker's DAO flush stage.",
			Buckets: prometheus.DefBuckets,
		}),
		AllLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    namespace + "_bulk_all_latency",
			Help:    "Duration of a full persistence tick, start to aggregate completion.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{s.ErrorCount, s.PrepareLatency, s.ExecuteLatency, s.AllLatency}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			// Re-binding against the same registerer on a repeated Start
			// call (spec.md §4.4's idempotence requirement): reuse
			// whatever is already registered instead of erroring.
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			collectors[i] = are.ExistingCollector
		}
	}
	s.ErrorCount = collectors[0].(prometheus.Counter)
	s.PrepareLatency = collectors[1].(prometheus.Histogram)
	s.ExecuteLatency = collectors[2].(prometheus.Histogram)
	s.AllLatency = collectors[3].(prometheus.Histogram)
	return s, nil
}

// Timer guarantees its histogram observation is recorded exactly once, no
// matter which exit path (success, error, or an early return via defer)
// closes it. Modeled on spec.md §9's "Scoped timers" design note: a
// primitive that cannot be forgotten the way an ambient try/finally
// convention can.
type Timer struct {
	hist  prometheus.Histogram
	start time.Time

	mu     sync.Mutex
	closed bool
}

func newTimer(hist prometheus.Histogram) *Timer {
	return &Timer{hist: hist, start: time.Now()}
}

// Close records the elapsed duration. Safe to call more than once; only the
// first call observes a sample.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.hist.Observe(time.Since(t.start).Seconds())
}

// StartPrepare opens a prepare-stage timer (spec.md §4.4, step 3a).
func (s *Sink) StartPrepare() *Timer { return newTimer(s.PrepareLatency) }

// StartExecute opens an execute-stage timer (spec.md §4.4, step 3e).
func (s *Sink) StartExecute() *Timer { return newTimer(s.ExecuteLatency) }

// StartAll opens an all-stage timer spanning a full tick (spec.md §4.4, step 1).
func (s *Sink) StartAll() *Timer { return newTimer(s.AllLatency) }

// IncError increments the tick-level error counter. The scheduler calls
// this at most once per tick, regardless of how many workers' flushes
// failed (spec.md §7).
func (s *Sink) IncError() { s.ErrorCount.Inc() }
