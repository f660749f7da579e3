package rag

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultCacheCapacity is the cache capacity used when the caller passes 0.
const DefaultCacheCapacity = 100

// QueryCache is a bounded, insertion-ordered (FIFO) cache mapping normalized
// query keys to previously computed result sets. Eviction is strictly by
// insertion order regardless of access frequency — this is deliberately not
// an LRU. All operations are O(1) and safe for concurrent use.
type QueryCache struct {
	// mu guards all fields below. Operations under it are O(1), so the
	// lock is never held across I/O.
	mu sync.Mutex

	// entries maps normalized query key to the cached result set.
	entries map[string]*ResultSet

	// order holds keys in insertion order; order[head] is the oldest live
	// entry. A ring buffer keeps eviction O(1).
	order []string

	// head is the index of the oldest entry in order.
	head int

	// tail is the index where the next key is written.
	tail int

	// size is the number of live entries.
	size int

	// capacity is the maximum number of entries.
	capacity int
}

// NewQueryCache constructs a QueryCache with the given capacity.
// A capacity of 0 selects DefaultCacheCapacity; negative capacities are
// a configuration error.
func NewQueryCache(capacity int) (*QueryCache, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("cache: capacity %d: %w", capacity, ErrConfig)
	}
	if capacity == 0 {
		capacity = DefaultCacheCapacity
	}
	return &QueryCache{
		entries:  make(map[string]*ResultSet, capacity),
		order:    make([]string, capacity),
		capacity: capacity,
	}, nil
}

// CacheKey derives the normalized cache key for a query. Whitespace runs are
// collapsed and the text lowercased so trivially different spellings of the
// same query share an entry; k and mode are part of the key because they
// change the correct answer.
func CacheKey(query string, k int, mode SearchMode) string {
	norm := strings.ToLower(strings.Join(strings.Fields(query), " "))
	return fmt.Sprintf("%s|k=%d|mode=%s", norm, k, mode)
}

// Get returns the cached result set for key, or nil when absent.
// The returned set is shared; callers must not mutate it.
func (c *QueryCache) Get(key string) *ResultSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}

// Put inserts a result set under key. When the cache is full the single
// oldest-inserted entry is evicted first. Re-putting an existing key
// refreshes its value without changing its insertion position.
func (c *QueryCache) Put(key string, rs *ResultSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = rs
		return
	}

	if c.size == c.capacity {
		oldest := c.order[c.head]
		delete(c.entries, oldest)
		c.head = (c.head + 1) % c.capacity
		c.size--
	}

	c.entries[key] = rs
	c.order[c.tail] = key
	c.tail = (c.tail + 1) % c.capacity
	c.size++
}

// InvalidateAll drops every entry. Called after any successful ingest:
// new content can change the correct answer set for cached queries, and the
// policy is freshness over cache longevity.
func (c *QueryCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*ResultSet, c.capacity)
	c.head = 0
	c.tail = 0
	c.size = 0
}

// Len returns the number of live entries.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Capacity returns the configured maximum number of entries.
func (c *QueryCache) Capacity() int { return c.capacity }
