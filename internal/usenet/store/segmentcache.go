package store

import (
	"sync"
	"time"
)

const (
	defaultSegmentCacheSize = 30
	defaultSegmentCacheTTL  = 2 * time.Minute
)

type cachedSegment struct {
	data        []byte
	cachedAt    time.Time
	accessCount int
}

// SegmentCache holds decoded segments for one stream. Eviction prefers
// the least-accessed entry, breaking ties on age; expired entries are
// dropped on read and by Sweep.
type SegmentCache struct {
	mu       sync.Mutex
	segments map[int]*cachedSegment
	maxSize  int
	ttl      time.Duration
}

// NewSegmentCache creates a cache with the default policy.
func NewSegmentCache() *SegmentCache {
	return NewSegmentCacheWith(defaultSegmentCacheSize, defaultSegmentCacheTTL)
}

// NewSegmentCacheWith creates a cache with explicit bounds.
func NewSegmentCacheWith(maxSize int, ttl time.Duration) *SegmentCache {
	if maxSize <= 0 {
		maxSize = defaultSegmentCacheSize
	}
	if ttl <= 0 {
		ttl = defaultSegmentCacheTTL
	}
	return &SegmentCache{
		segments: make(map[int]*cachedSegment),
		maxSize:  maxSize,
		ttl:      ttl,
	}
}

// Get returns a cached segment's bytes and bumps its access count.
func (c *SegmentCache) Get(index int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.segments[index]
	if !ok {
		return nil, false
	}
	if time.Since(entry.cachedAt) > c.ttl {
		delete(c.segments, index)
		return nil, false
	}
	entry.accessCount++
	return entry.data, true
}

// Put stores a decoded segment, evicting when at capacity.
func (c *SegmentCache) Put(index int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.segments[index]; !ok && len(c.segments) >= c.maxSize {
		c.evictLocked()
	}
	c.segments[index] = &cachedSegment{data: data, cachedAt: time.Now()}
}

// InvalidateOutsideWindow drops entries outside [center-w, center+w].
// Random-access consumers use it to narrow retention.
func (c *SegmentCache) InvalidateOutsideWindow(center, window int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for index := range c.segments {
		if index < center-window || index > center+window {
			delete(c.segments, index)
		}
	}
}

// Sweep removes expired entries.
func (c *SegmentCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	now := time.Now()
	for index, entry := range c.segments {
		if now.Sub(entry.cachedAt) > c.ttl {
			delete(c.segments, index)
			removed++
		}
	}
	return removed
}

// Len reports the number of cached segments.
func (c *SegmentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.segments)
}

// evictLocked removes the entry with the lowest access count, oldest
// first on ties.
func (c *SegmentCache) evictLocked() {
	victim := -1
	for index, entry := range c.segments {
		if victim == -1 {
			victim = index
			continue
		}
		v := c.segments[victim]
		if entry.accessCount < v.accessCount ||
			(entry.accessCount == v.accessCount && entry.cachedAt.Before(v.cachedAt)) {
			victim = index
		}
	}
	if victim >= 0 {
		delete(c.segments, victim)
	}
}
