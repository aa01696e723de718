package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache evicts by least recent use once maxSize is exceeded and expires
// entries after ttl. A zero ttl never expires.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	stats   Stats
	now     func() time.Time
}

var _ Cache[int] = (*LRUCache[int])(nil)

type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		maxSize: max(maxSize, 1),
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

func (c *LRUCache[T]) live(e *entry[T], now time.Time) bool {
	return c.ttl <= 0 || !now.After(e.expiresAt)
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[T])
		if c.live(e, c.now()) {
			c.order.MoveToFront(el)
			c.stats.Hits++
			return e.value, true
		}
		c.remove(el)
		c.stats.Expired++
	}
	c.stats.Misses++
	var zero T
	return zero, false
}

// Set stores value under key, refreshing its expiry and recency.
func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[T])
		e.value, e.expiresAt = value, expiresAt
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry[T]{key: key, value: value, expiresAt: expiresAt})
	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
		c.stats.Evictions++
	}
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

// Purge drops every entry. Counters are kept.
func (c *LRUCache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.entries)
	c.order.Init()
}

func (c *LRUCache[T]) remove(el *list.Element) {
	delete(c.entries, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}

// CleanExpired removes expired entries and returns how many went.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}
	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if !c.live(el.Value.(*entry[T]), now) {
			c.remove(el)
			removed++
		}
		el = prev
	}
	c.stats.Expired += uint64(removed)
	return removed
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters and the current size.
func (c *LRUCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	return s
}
