// Package promptcache bounds how often per-user personalization text
// is re-read from the store.
package promptcache

import (
	"context"
	"sync"
	"time"
)

// Loader fetches the personalization text for a user from the store.
type Loader func(ctx context.Context) (string, error)

type entry struct {
	text      string
	fetchedAt time.Time
}

// Cache is a process-wide, TTL-bounded map of per-user personalization
// text. A single coarse mutex guards the map; the loader runs without
// the lock so a slow store read for one user never blocks lookups for
// others. Two concurrent misses for the same user may both run the
// loader; the last writer wins, which is acceptable because the loaded
// value is deterministic for a given store state.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// New creates a cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	return NewWithClock(ttl, time.Now)
}

// NewWithClock creates a cache with an injectable clock for tests.
func NewWithClock(ttl time.Duration, now func() time.Time) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]entry),
	}
}

// Get returns the cached text for userID if it is younger than the TTL,
// otherwise runs the loader and caches its result.
func (c *Cache) Get(ctx context.Context, userID string, load Loader) (string, error) {
	c.mu.Lock()
	if e, ok := c.entries[userID]; ok && c.now().Sub(e.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return e.text, nil
	}
	c.mu.Unlock()

	text, err := load(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[userID] = entry{text: text, fetchedAt: c.now()}
	c.mu.Unlock()

	return text, nil
}

// Invalidate removes the entry for userID if present. Calling it for an
// unknown user is a no-op.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
