package pipeline

import "container/list"

// lruCache is a fixed-capacity least-recently-used set of content hashes.
// Hand-rolled rather than pulled from a third-party LRU library: its
// eviction order and exact size bound need to be auditable against the
// dedup contract directly, not inherited from a library's own policy.
type lruCache struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

func newLRUCache(capacity int) *lruCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &lruCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Contains reports whether hash is present, promoting it to most-recently-used.
func (c *lruCache) Contains(hash string) bool {
	el, ok := c.entries[hash]
	if !ok {
		return false
	}
	c.order.MoveToFront(el)
	return true
}

// Add inserts hash as most-recently-used, evicting the oldest entry if the
// cache is at capacity.
func (c *lruCache) Add(hash string) {
	if el, ok := c.entries[hash]; ok {
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(hash)
	c.entries[hash] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(string))
		}
	}
}

// Len reports the number of entries currently cached.
func (c *lruCache) Len() int { return c.order.Len() }
