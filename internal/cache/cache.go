// Package cache memoizes point reads against an immutable base snapshot.
package cache

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"
)

const (
	MinCacheSize = 16
)

// entry is a cached base lookup. Absent keys are cached too so repeated
// misses (common when Delete probes the base) skip the store.
type entry struct {
	value []byte
	found bool
}

// Cache is an LRU of base snapshot reads. It is not safe for concurrent use;
// each overlay owns one.
type Cache struct {
	lru *freelru.LRU[string, entry]

	// Stats
	hits   atomic.Uint64
	misses atomic.Uint64
}

func hashKey(k string) uint32 {
	return uint32(xxhash.Sum64String(k))
}

// New returns a cache holding at most maxSize entries.
func New(maxSize int) (*Cache, error) {
	maxSize = max(maxSize, MinCacheSize)

	lru, err := freelru.New[string, entry](uint32(maxSize), hashKey)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: lru}, nil
}

// Get returns the cached result for key. ok is false on a cache miss; found
// reports whether the base had the key.
func (c *Cache) Get(key []byte) (value []byte, found, ok bool) {
	e, ok := c.lru.Get(string(key))
	if !ok {
		c.misses.Add(1)
		return nil, false, false
	}

	c.hits.Add(1)
	return e.value, e.found, true
}

// Put records the base result for key. value must stay valid for as long as
// the snapshot it came from.
func (c *Cache) Put(key, value []byte, found bool) {
	c.lru.Add(string(key), entry{value: value, found: found})
}

// Purge drops every entry. Called whenever the snapshot underneath changes.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Size returns current number of cached entries
func (c *Cache) Size() int {
	return c.lru.Len()
}

// Stats holds cache counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Stats returns hit and miss counts since creation.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
