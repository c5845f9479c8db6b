package cache

import (
	"container/heap"
	"sync"

	"github.com/oapcore/persistence/pkg/persistence/model"
)

// Less reports whether a ranks below b in the worker's natural order. The
// bounded buffer keeps the N items that rank highest, i.e. it evicts the
// Less-est item first.
type Less func(a, b model.StorageItem) bool

// topNHeap is a container/heap.Interface over buffered items; Pop/Push
// always touch index 0, the current minimum. Using the same container/heap
// primitive the teacher's priority eviction policy
// (pkg/storage/cache/eviction.go) builds on for its own victim selection.
type topNHeap struct {
	items []model.StorageItem
	less  Less
}

func (h *topNHeap) Len() int           { return len(h.items) }
func (h *topNHeap) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }
func (h *topNHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topNHeap) Push(x any)         { h.items = append(h.items, x.(model.StorageItem)) }
func (h *topNHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// LimitedSizeBufferedData is a bounded sorted set that keeps only the top N
// items seen so far according to Less; overflow silently drops the item that
// would rank lowest. Ties are broken toward the earlier-inserted item: a
// newcomer must rank strictly higher than the current minimum to evict it,
// so an equal-ranked incumbent is never displaced.
type LimitedSizeBufferedData struct {
	mu       sync.Mutex
	capacity int
	h        *topNHeap
}

// NewLimitedSizeBufferedData returns an empty bounded buffer of the given
// capacity, ordering items with less.
func NewLimitedSizeBufferedData(capacity int, less Less) *LimitedSizeBufferedData {
	return &LimitedSizeBufferedData{
		capacity: capacity,
		h:        &topNHeap{less: less},
	}
}

// Insert adds item if the buffer has room, or if item outranks the buffer's
// current minimum; otherwise item is dropped.
func (b *LimitedSizeBufferedData) Insert(item model.StorageItem) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity <= 0 {
		return
	}

	if b.h.Len() < b.capacity {
		heap.Push(b.h, item)
		return
	}

	min := b.h.items[0]
	if b.h.less(min, item) {
		heap.Pop(b.h)
		heap.Push(b.h, item)
	}
}

// Snapshot returns the buffer's current contents in no particular order.
func (b *LimitedSizeBufferedData) Snapshot() []model.StorageItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.StorageItem, len(b.h.items))
	copy(out, b.h.items)
	return out
}

// Len reports the number of items currently buffered.
func (b *LimitedSizeBufferedData) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.h.Len()
}

// TopNCache is the double-buffered cache used by Top-N workers: two
// LimitedSizeBufferedData buffers with the same swap-on-read protocol as
// ReadWriteSafeCache, bounding total memory to 2*capacity at all times.
type TopNCache struct {
	mu       sync.Mutex
	active   int
	capacity int
	less     Less
	bufs     [2]*LimitedSizeBufferedData
}

// NewTopNCache returns an empty top-N cache of the given per-buffer capacity.
func NewTopNCache(capacity int, less Less) *TopNCache {
	c := &TopNCache{capacity: capacity, less: less}
	c.bufs[0] = NewLimitedSizeBufferedData(capacity, less)
	c.bufs[1] = NewLimitedSizeBufferedData(capacity, less)
	return c
}

// Offer inserts item into the active buffer's bounded top-N set. Held across
// c.mu the same way Read holds it across the swap, so a concurrent Offer can
// never land an item in a buffer that Read has already drained and replaced
// (spec.md §8, invariant 2).
func (c *TopNCache) Offer(item model.StorageItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bufs[c.active].Insert(item)
}

// Read swaps buffers and returns the previously active one's snapshot,
// replacing it with a fresh empty buffer so memory never exceeds 2*capacity.
func (c *TopNCache) Read() []model.StorageItem {
	c.mu.Lock()
	drained := c.active
	out := c.bufs[drained]
	c.bufs[drained] = NewLimitedSizeBufferedData(c.capacity, c.less)
	c.active = 1 - drained
	c.mu.Unlock()
	return out.Snapshot()
}

// Len reports the combined size of both buffers.
func (c *TopNCache) Len() int {
	c.mu.Lock()
	a, b := c.bufs[0], c.bufs[1]
	c.mu.Unlock()
	return a.Len() + b.Len()
}
