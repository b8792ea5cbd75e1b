// Package cache is the decoded-segment cache: recency-evicting under a
// byte budget, with reference counting so an entry a task is reading can
// never be evicted underneath it.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	key   string
	value interface{}
	size  int64
	refs  int
	elem  *list.Element
}

// Handle is a pinned reference to a cache entry. The caller must Release
// it when done; Release is idempotent.
type Handle struct {
	cache    *SegmentCache
	entry    *entry
	released int32
}

func (h *Handle) Value() interface{} {
	return h.entry.value
}

func (h *Handle) Release() {
	if !atomic.CompareAndSwapInt32(&h.released, 0, 1) {
		return
	}
	if h.cache == nil {
		return
	}
	h.cache.release(h.entry)
}

// SegmentCache is a refcounted LRU over decoded segments. Loads for the
// same key coalesce into a single loader call; concurrent requesters all
// receive their own pinned handle onto the one loaded entry.
type SegmentCache struct {
	maxBytes int64

	mu        sync.Mutex
	entries   map[string]*entry
	lru       *list.List // front is most recently used
	usedBytes int64

	group  singleflight.Group
	hits   int64
	misses int64
}

func New(maxBytes int64) *SegmentCache {
	return &SegmentCache{
		maxBytes: maxBytes,
		entries:  make(map[string]*entry),
		lru:      list.New(),
	}
}

type loadResult struct {
	value interface{}
	size  int64
}

// GetOrLoad returns a pinned handle for the key, invoking the loader on a
// miss. Concurrent callers for the same missing key share one loader call.
// A value too large for the budget is still returned, just never cached.
func (c *SegmentCache) GetOrLoad(key string, loader func() (interface{}, int64, error)) (*Handle, error) {
	if h := c.pin(key); h != nil {
		atomic.AddInt64(&c.hits, 1)
		return h, nil
	}
	atomic.AddInt64(&c.misses, 1)
	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		if c.has(key) {
			return nil, nil
		}
		value, size, err := loader()
		if err != nil {
			return nil, err
		}
		c.insert(key, value, size)
		return loadResult{value: value, size: size}, nil
	})
	if err != nil {
		return nil, err
	}
	if h := c.pin(key); h != nil {
		return h, nil
	}
	// the entry was too large to cache or already evicted again; hand the
	// loaded value back unmanaged
	if lr, ok := res.(loadResult); ok {
		return &Handle{entry: &entry{key: key, value: lr.value, size: lr.size}}, nil
	}
	// another caller's load satisfied the singleflight but the entry is
	// gone; load for ourselves, uncached
	value, size, err := loader()
	if err != nil {
		return nil, err
	}
	return &Handle{entry: &entry{key: key, value: value, size: size}}, nil
}

func (c *SegmentCache) pin(key string) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	e.refs++
	c.lru.MoveToFront(e.elem)
	return &Handle{cache: c, entry: e}
}

func (c *SegmentCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *SegmentCache) insert(key string, value interface{}, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if size > c.maxBytes {
		return
	}
	if _, ok := c.entries[key]; ok {
		return
	}
	e := &entry{key: key, value: value, size: size}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.usedBytes += size
	c.evictLocked()
}

func (c *SegmentCache) release(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs--
	if c.usedBytes > c.maxBytes {
		c.evictLocked()
	}
}

// evictLocked drops least-recently-used entries until the budget holds,
// skipping pinned entries.
func (c *SegmentCache) evictLocked() {
	elem := c.lru.Back()
	for c.usedBytes > c.maxBytes && elem != nil {
		prev := elem.Prev()
		e := elem.Value.(*entry)
		if e.refs == 0 {
			c.lru.Remove(elem)
			delete(c.entries, e.key)
			c.usedBytes -= e.size
		}
		elem = prev
	}
}

// Invalidate drops the entry if present and unpinned.
func (c *SegmentCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.refs > 0 {
		return
	}
	c.lru.Remove(e.elem)
	delete(c.entries, key)
	c.usedBytes -= e.size
}

func (c *SegmentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SegmentCache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

func (c *SegmentCache) Hits() int64 {
	return atomic.LoadInt64(&c.hits)
}

func (c *SegmentCache) Misses() int64 {
	return atomic.LoadInt64(&c.misses)
}
