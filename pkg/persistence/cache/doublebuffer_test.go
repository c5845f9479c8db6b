package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oapcore/persistence/pkg/persistence/cache"
	"github.com/oapcore/persistence/pkg/persistence/model"
)

type fakeItem struct {
	name  string
	value float64
}

func (f *fakeItem) Model() *model.Model {
	return model.NewModel("fake_metric", model.KindMetrics, time.Minute)
}

func TestReadWriteSafeCache_ReadDrainsActiveBuffer(t *testing.T) {
	c := cache.NewReadWriteSafeCache()
	c.Offer(&fakeItem{name: "a"})
	c.Offer(&fakeItem{name: "b"})

	require.Equal(t, 2, c.Len())

	drained := c.Read()
	assert.Len(t, drained, 2, "first Read should return everything offered so far")
	assert.Equal(t, 0, c.Len(), "buffers should be empty immediately after the swap")
}

func TestReadWriteSafeCache_WritesAfterSwapGoToTheOtherBuffer(t *testing.T) {
	c := cache.NewReadWriteSafeCache()
	c.Offer(&fakeItem{name: "a"})

	first := c.Read()
	require.Len(t, first, 1)

	c.Offer(&fakeItem{name: "b"})
	second := c.Read()
	assert.Len(t, second, 1, "a second Read should only see items offered after the first swap")
	assert.Equal(t, "b", second[0].(*fakeItem).name)
}

func TestReadWriteSafeCache_ConcurrentOffersAreNotLost(t *testing.T) {
	c := cache.NewReadWriteSafeCache()
	const writers = 50
	const perWriter = 20

	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				c.Offer(&fakeItem{name: "x"})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, c.Len())
}
