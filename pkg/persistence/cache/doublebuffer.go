// Package cache implements the worker-side double-buffered cache described
// in spec.md §4.5 (C7): many concurrent writers append to an active buffer
// while a single reader swaps buffers and drains the one writers can no
// longer see. The swap is guarded by a mutex rather than made lock-free —
// the teacher's equivalent structures (pkg/storage/cache/memory.go,
// pkg/storage/cache/eviction.go in the reference pack) use a plain
// sync.Mutex/sync.RWMutex around their hot paths too, and spec.md §9
// explicitly leaves the wait-free-vs-locked choice to the implementer.
package cache

import (
	"sync"

	"github.com/oapcore/persistence/pkg/persistence/model"
)

// ReadWriteSafeCache is the unbounded double buffer used by metrics workers.
// Upstream rate-limiting (the data-carrier queues feeding Offer) is assumed
// to bound memory; the cache itself never drops an item.
type ReadWriteSafeCache struct {
	mu     sync.Mutex
	active int
	bufs   [2][]model.StorageItem
}

// NewReadWriteSafeCache returns an empty cache ready to accept writes.
func NewReadWriteSafeCache() *ReadWriteSafeCache {
	return &ReadWriteSafeCache{}
}

// Offer appends item to the currently active buffer. Safe for concurrent
// callers; never blocks.
func (c *ReadWriteSafeCache) Offer(item model.StorageItem) {
	c.mu.Lock()
	c.bufs[c.active] = append(c.bufs[c.active], item)
	c.mu.Unlock()
}

// Read atomically swaps the write pointer to the other buffer and returns the
// previously active buffer's contents. The buffer behind the returned slice
// is cleared before the swap protocol can make it active again, so no writer
// can land an item in a slice already handed to the caller.
func (c *ReadWriteSafeCache) Read() []model.StorageItem {
	c.mu.Lock()
	drained := c.active
	c.active = 1 - c.active
	out := c.bufs[drained]
	c.bufs[drained] = nil
	c.mu.Unlock()
	return out
}

// Len reports the combined size of both buffers, mainly for tests and
// metrics; it is not part of the swap protocol.
func (c *ReadWriteSafeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bufs[0]) + len(c.bufs[1])
}
