package cache

import (
	"container/list"
	"sync"
	"time"
)

type memoryEntry struct {
	key          string
	responseBody []byte
	meta         Metadata
	expiresAt    time.Time
}

// MemoryCache is the in-process LRU+TTL backend. Hits move the entry to
// the back of the recency list; eviction pops the front. An expired entry
// is removed on access and counts as a miss.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxSize    int
	defaultTTL time.Duration
	hits       int64
	misses     int64
	now        func() time.Time
}

func NewMemoryCache(maxSize int, defaultTTL time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &MemoryCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(provider string, body []byte) ([]byte, *Metadata, bool) {
	key := Key(provider, body)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, nil, false
	}

	entry := elem.Value.(*memoryEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		c.misses++
		return nil, nil, false
	}

	c.order.MoveToBack(elem)
	c.hits++
	meta := entry.meta
	return entry.responseBody, &meta, true
}

func (c *MemoryCache) Set(provider string, body, responseBody []byte, meta Metadata, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	key := Key(provider, body)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}

	for len(c.entries) >= c.maxSize {
		front := c.order.Front()
		if front == nil {
			break
		}
		c.order.Remove(front)
		delete(c.entries, front.Value.(*memoryEntry).key)
	}

	entry := &memoryEntry{
		key:          key,
		responseBody: responseBody,
		meta:         meta,
		expiresAt:    c.now().Add(ttl),
	}
	c.entries[key] = c.order.PushBack(entry)
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.hits = 0
	c.misses = 0
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate(c.hits, c.misses),
		Size:    len(c.entries),
		MaxSize: c.maxSize,
	}
}
