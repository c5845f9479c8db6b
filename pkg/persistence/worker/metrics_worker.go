package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oapcore/persistence/pkg/logging"
	"github.com/oapcore/persistence/pkg/persistence/cache"
	"github.com/oapcore/persistence/pkg/persistence/model"
	"github.com/oapcore/persistence/pkg/persistence/perrors"
)

// MetricsWorker is the persistence worker for aggregation-result streams
// (spec.md §4.1). It owns an unbounded double-buffered cache and, when
// config.EnableDatabaseSession is set, a last-seen session map that
// EndOfRound purges once an entry's freshness window elapses — the
// "storageSessionTimeout" knob from spec.md §6. The session-expiry policy
// itself is not specified upstream (spec.md §9's open question); the purge
// rule implemented here is the base contract stated in spec.md §4.1:
// evict anything whose freshness window has elapsed.
type MetricsWorker struct {
	id    string
	mdl   *model.Model
	cache *cache.ReadWriteSafeCache
	mpr   Mapper
	log   *logging.Logger

	sessionEnabled bool
	sessionTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]time.Time
	now      func() time.Time
}

// NewMetricsWorker constructs a metrics worker for mdl, converting drained
// items to requests via mapper. sessionTimeout/sessionEnabled mirror the
// enableDatabaseSession and storageSessionTimeout knobs from spec.md §6.
func NewMetricsWorker(id string, mdl *model.Model, mapper Mapper, sessionEnabled bool, sessionTimeout time.Duration, log *logging.Logger) *MetricsWorker {
	if log == nil {
		log = logging.Default()
	}
	return &MetricsWorker{
		id:             id,
		mdl:            mdl,
		cache:          cache.NewReadWriteSafeCache(),
		mpr:            mapper,
		log:            log.With("worker", id),
		sessionEnabled: sessionEnabled,
		sessionTimeout: sessionTimeout,
		sessions:       make(map[string]time.Time),
		now:            time.Now,
	}
}

// ID implements Worker.
func (w *MetricsWorker) ID() string { return w.id }

// Kind implements Worker.
func (w *MetricsWorker) Kind() model.Kind { return model.KindMetrics }

// Offer implements Buffered: a non-blocking append to the active buffer.
// When session tracking is enabled, it also touches the item's session key
// so EndOfRound knows it is still fresh.
func (w *MetricsWorker) Offer(item model.StorageItem) error {
	w.cache.Offer(item)
	if w.sessionEnabled {
		if keyed, ok := item.(SessionKeyed); ok {
			w.touchSession(keyed.SessionKey())
		}
	}
	return nil
}

// SessionKeyed is implemented by StorageItem values that participate in
// session-expiry tracking; items that don't implement it are simply never
// tracked, which matches "session tracking" being an opt-in, per-item
// capability rather than a property of every metric.
type SessionKeyed interface {
	SessionKey() string
}

func (w *MetricsWorker) touchSession(key string) {
	w.mu.Lock()
	w.sessions[key] = w.now()
	w.mu.Unlock()
}

// BuildBatchRequests implements BatchBuildable: drain the cache and map
// every item to a PreparedRequest. A single item's mapping failure is
// logged and the item skipped; it never aborts the rest of the batch
// (spec.md §4.2's BuildFailure edge case applies identically here).
func (w *MetricsWorker) BuildBatchRequests(ctx context.Context) ([]model.PreparedRequest, error) {
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

// EndOfRound purges session entries whose freshness window has elapsed.
// A no-op when session tracking is disabled.
func (w *MetricsWorker) EndOfRound(ctx context.Context) {
	if !w.sessionEnabled {
		return
	}

	cutoff := w.now().Add(-w.sessionTimeout)
	w.mu.Lock()
	for key, seen := range w.sessions {
		if seen.Before(cutoff) {
			delete(w.sessions, key)
		}
	}
	w.mu.Unlock()
}

// SessionCount reports the number of tracked session keys; exposed for
// tests verifying EndOfRound's purge behavior.
func (w *MetricsWorker) SessionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions)
}
