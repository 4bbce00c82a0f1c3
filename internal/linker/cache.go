package linker

import (
	"container/list"
	"sync"

	"github.com/latticenotes/lattice/internal/vector"
)

// resultCache is an LRU over raw candidate lists keyed by content hash.
// Entries hold unfiltered over-fetched hits; filtering happens per request.
type resultCache struct {
	capacity int
	mu       sync.Mutex
	order    *list.List
	entries  map[[32]byte]*list.Element
}

type cacheEntry struct {
	key  [32]byte
	hits []*vector.Result
}

func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &resultCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[[32]byte]*list.Element),
	}
}

func (c *resultCache) get(key [32]byte) ([]*vector.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).hits, true
}

func (c *resultCache) set(key [32]byte, hits []*vector.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).hits = hits
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, hits: hits})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
