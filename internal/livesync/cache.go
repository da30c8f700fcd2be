package livesync

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL keeps read results for a few seconds.
const DefaultCacheTTL = 3 * time.Second

// Cache is a short-lived read cache keyed by query signature. Concurrent
// misses on one key share a single load; invalidation takes effect
// immediately, including for loads already in flight.
type Cache[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	items   map[string]cacheItem[T]
	loading map[string]bool
	gen     map[string]uint64
	epoch   uint64
	group   singleflight.Group

	hits, misses uint64
}

type cacheItem[T any] struct {
	value   T
	expires time.Time
}

func NewCache[T any](ttl time.Duration) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache[T]{
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[string]cacheItem[T]),
		loading: make(map[string]bool),
		gen:     make(map[string]uint64),
	}
}

// Get returns the cached value for key or loads it.
func (c *Cache[T]) Get(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	if item, ok := c.items[key]; ok && c.now().Before(item.expires) {
		c.hits++
		c.mu.Unlock()
		return item.value, nil
	}
	c.misses++
	c.mu.Unlock()

	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.Lock()
		gen, epoch := c.gen[key], c.epoch
		c.loading[key] = true
		c.mu.Unlock()

		v, err := load(context.WithoutCancel(ctx))

		c.mu.Lock()
		delete(c.loading, key)
		if err == nil && c.gen[key] == gen && c.epoch == epoch {
			c.items[key] = cacheItem[T]{value: v, expires: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return v, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Invalidate drops keys now. A load in flight for one of them will not
// store its result.
func (c *Cache[T]) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		c.dropLocked(key)
	}
}

// InvalidatePrefix drops every key starting with prefix.
func (c *Cache[T]) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.dropLocked(key)
		}
	}
	for key := range c.loading {
		if strings.HasPrefix(key, prefix) {
			c.dropLocked(key)
		}
	}
}

func (c *Cache[T]) dropLocked(key string) {
	delete(c.items, key)
	c.gen[key]++
	c.group.Forget(key)
}

// InvalidateAll empties the cache.
func (c *Cache[T]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		c.group.Forget(key)
	}
	for key := range c.loading {
		c.group.Forget(key)
	}
	c.items = make(map[string]cacheItem[T])
	c.epoch++
}

// Stats returns hit and miss counts.
func (c *Cache[T]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
