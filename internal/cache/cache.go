// Package cache provides a bounded in-process cache with per-entry expiry.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Stats is a snapshot of cache effectiveness.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// InMemoryCache is an LRU of at most size entries, each living for ttl.
type InMemoryCache struct {
	lru    *lru.LRU[string, interface{}]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewInMemoryCache(size int, ttl time.Duration) *InMemoryCache {
	if size < 1 {
		size = 1
	}
	return &InMemoryCache{
		lru: lru.NewLRU[string, interface{}](size, nil, ttl),
	}
}

func (c *InMemoryCache) Get(_ context.Context, key string) (interface{}, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *InMemoryCache) Set(_ context.Context, key string, value interface{}) {
	c.lru.Add(key, value)
}

func (c *InMemoryCache) Delete(_ context.Context, key string) {
	c.lru.Remove(key)
}

func (c *InMemoryCache) Purge() {
	c.lru.Purge()
}

func (c *InMemoryCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.lru.Len(),
	}
}
