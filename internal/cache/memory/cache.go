// Package memory implements the shared cache in-process for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/clock/system"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
)

type entry struct {
	value     int64
	expiresAt time.Time
}

// Cache is a mutex-guarded TTL map. Increments hold the lock for the whole
// read-add-write so concurrent callers never lose updates.
type Cache struct {
	mu    sync.Mutex
	clock discovery.Clock
	items map[string]entry
}

// New returns an empty Cache. A nil clock uses wall time.
func New(clock discovery.Clock) *Cache {
	if clock == nil {
		clock = system.New()
	}
	return &Cache{clock: clock, items: make(map[string]entry)}
}

// lookup returns the live entry for key, evicting it when expired. Callers hold mu.
func (c *Cache) lookup(key string) (entry, bool) {
	e, ok := c.items[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt) {
		delete(c.items, key)
		return entry{}, false
	}
	return e, true
}

// Incr adds delta to key. The TTL is set only when the key is created.
func (c *Cache) Incr(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		e = entry{}
		if ttl > 0 {
			e.expiresAt = c.clock.Now().Add(ttl)
		}
	}
	e.value += delta
	c.items[key] = e
	return e.value, nil
}

// Get returns the counter at key or zero.
func (c *Cache) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, _ := c.lookup(key)
	return e.value, nil
}

// SetMarker stores key with the given TTL, replacing any previous expiry.
func (c *Cache) SetMarker(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{value: 1}
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}
	c.items[key] = e
	return nil
}

// Exists reports whether key is present and unexpired.
func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookup(key)
	return ok, nil
}

// Len returns the number of live keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.items {
		if _, ok := c.lookup(k); ok {
			n++
		}
	}
	return n
}
