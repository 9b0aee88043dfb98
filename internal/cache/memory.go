package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// entry is a single cached response.
type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process LRU cache with per-entry TTL. It is the default
// backend when no Redis address is configured.
type Memory struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	lruList  *list.List

	// Statistics
	hits      int64
	misses    int64
	evictions int64

	now func() time.Time
}

// NewMemory creates an in-memory cache holding at most capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Memory{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lruList:  list.New(),
		now:      time.Now,
	}
}

// Get retrieves a fresh entry. Expired entries are removed on access and
// count as misses.
func (c *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false, nil
	}

	e := elem.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.lruList.Remove(elem)
		delete(c.items, key)
		c.misses++
		return nil, false, nil
	}

	c.lruList.MoveToFront(elem)
	c.hits++
	return e.value, true, nil
}

// Set stores a value, refreshing the entry if the key already exists.
func (c *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)

	if elem, exists := c.items[key]; exists {
		c.lruList.MoveToFront(elem)
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		return nil
	}

	elem := c.lruList.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	if c.lruList.Len() > c.capacity {
		c.evictOldest()
	}
	return nil
}

// Delete removes an entry if present.
func (c *Memory) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.lruList.Remove(elem)
		delete(c.items, key)
	}
	return nil
}

// Close satisfies Cache. Nothing to release.
func (c *Memory) Close() error {
	return nil
}

func (c *Memory) evictOldest() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}
	c.lruList.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
	c.evictions++
}

// Stats holds cache counters.
type Stats struct {
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
	Capacity  int
}

// HitRate calculates the cache hit rate.
func (s *Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns current cache statistics.
func (c *Memory) Stats() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &Stats{
		Items:     c.lruList.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Capacity:  c.capacity,
	}
}
