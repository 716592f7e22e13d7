package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Observer receives hit/miss notifications, typically a metrics sink.
type Observer interface {
	CacheHit(name string)
	CacheMiss(name string)
}

type entry[V any] struct {
	val V
	exp time.Time // zero means no expiry
}

// TTL is a concurrency-safe keyed cache with per-entry expiry.
// Entries leave the cache only by expiry or an explicit Invalidate.
type TTL[V any] struct {
	mu    sync.RWMutex
	m     map[string]entry[V]
	ttl   time.Duration
	name  string
	obs   Observer
	group singleflight.Group

	now func() time.Time
}

// New creates a cache whose entries live for ttl. A ttl <= 0 never expires.
func New[V any](name string, ttl time.Duration, obs Observer) *TTL[V] {
	return &TTL[V]{
		m:    make(map[string]entry[V]),
		ttl:  ttl,
		name: name,
		obs:  obs,
		now:  time.Now,
	}
}

// Get returns the value stored under key if present and not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok || c.expired(e) {
		c.miss()
		return zero, false
	}
	c.hit()
	return e.val, true
}

// Set stores v under key, resetting its expiry.
func (c *TTL[V]) Set(key string, v V) {
	e := entry[V]{val: v}
	if c.ttl > 0 {
		e.exp = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.m[key] = e
	c.mu.Unlock()
}

// GetOrCompute returns the cached value for key or runs compute to produce it.
// Concurrent misses for the same key share a single compute call.
// Errors are returned to every waiter and are not cached.
func (c *TTL[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		// another caller may have filled the entry while we queued
		c.mu.RLock()
		e, ok := c.m[key]
		c.mu.RUnlock()
		if ok && !c.expired(e) {
			return e.val, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Invalidate removes key.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// PurgeExpired drops every expired entry and returns how many were removed.
func (c *TTL[V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.m {
		if c.expired(e) {
			delete(c.m, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *TTL[V]) expired(e entry[V]) bool {
	return !e.exp.IsZero() && !c.now().Before(e.exp)
}

func (c *TTL[V]) hit() {
	if c.obs != nil {
		c.obs.CacheHit(c.name)
	}
}

func (c *TTL[V]) miss() {
	if c.obs != nil {
		c.obs.CacheMiss(c.name)
	}
}
