// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filter

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultCacheSize bounds the compiled-filter cache when no explicit
// capacity is configured.
const DefaultCacheSize = 256

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spatial_filter_cache_hits_total",
		Help: "Compiled filter expressions served from the cache.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spatial_filter_cache_misses_total",
		Help: "Filter expressions compiled on a cache miss.",
	})
)

// Cache is a fixed-size LRU of compiled filters keyed by expression
// source. Spawning walkers reuse the same handful of filter expressions
// across thousands of visits, so compilation is amortized here.
//
// Thread Safety: All methods are safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // Front = most recent, Back = least recent

	evictions atomic.Int64
}

// cacheEntry holds the source-filter pair in the list.
type cacheEntry struct {
	src string
	f   *Filter
}

// NewCache creates a compiled-filter cache with the given capacity.
// Capacities <= 0 fall back to DefaultCacheSize.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// GetOrCompile returns the compiled filter for src, compiling and caching
// it on a miss.
//
// Description:
//
//	Looks the source up in the LRU; on a hit the entry moves to the
//	front. On a miss the expression is compiled and, if valid, stored.
//	Compilation failures are not cached so a corrected expression with
//	the same prefix does not collide with stale diagnostics.
//
// Inputs:
//
//	src - filter expression source. The empty string compiles to a
//	      match-all filter.
//
// Outputs:
//
//	*Filter - the compiled filter.
//	error - EvalError if compilation failed.
//
// Thread Safety: Safe for concurrent use.
func (c *Cache) GetOrCompile(src string) (*Filter, error) {
	c.mu.Lock()
	if elem, ok := c.items[src]; ok {
		c.order.MoveToFront(elem)
		f := elem.Value.(*cacheEntry).f
		c.mu.Unlock()
		cacheHits.Inc()
		return f, nil
	}
	c.mu.Unlock()

	cacheMisses.Inc()
	f, err := Compile(src)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[src]; ok {
		// Raced with another compiler; keep the incumbent.
		c.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry).f, nil
	}
	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	c.items[src] = c.order.PushFront(&cacheEntry{src: src, f: f})
	return f, nil
}

// Len returns the number of cached filters.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Evictions returns the number of entries evicted due to capacity limits.
func (c *Cache) Evictions() int64 {
	return c.evictions.Load()
}

// Purge clears all cached filters.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	c.evictions.Store(0)
}

// evictOldest removes the least recently used entry.
// Caller must hold the lock.
func (c *Cache) evictOldest() {
	if elem := c.order.Back(); elem != nil {
		c.order.Remove(elem)
		delete(c.items, elem.Value.(*cacheEntry).src)
		c.evictions.Add(1)
	}
}
