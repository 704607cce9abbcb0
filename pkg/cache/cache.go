// Package cache provides the key/value list-buffer contract the stream
// broker uses for reconnection replay. The semantics mirror a Redis
// list: push newest-first, trim to a bounded length, refresh a TTL on
// every write. It is backed by an in-process, TTL-expiring store so a
// single-pod deployment needs no external cache; the interface is the
// seam a future Redis-backed implementation would sit behind.
package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ListCache is the narrow interface the stream broker depends on.
type ListCache interface {
	// ListPush prepends value to the list at key (newest-first).
	ListPush(key string, value string)
	// ListTrim keeps only the first maxLen entries of the list at key.
	ListTrim(key string, maxLen int)
	// Expire refreshes key's TTL.
	Expire(key string, ttl time.Duration)
	// ListRange returns the full list at key, in storage order
	// (newest-first); callers wanting chronological order must reverse it.
	ListRange(key string) []string
}

type entry struct {
	mu     sync.Mutex
	values []string
}

// Cache is an in-process ListCache. Safe for concurrent use.
type Cache struct {
	store *gocache.Cache
	mu    sync.Mutex // guards creation of a key's entry
}

// New builds a Cache whose entries expire after defaultTTL unless
// refreshed, cleaning up stale sessions the way Redis's own TTL would.
func New(defaultTTL time.Duration) *Cache {
	return &Cache{store: gocache.New(defaultTTL, defaultTTL/2)}
}

func (c *Cache) entryFor(key string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.store.Get(key); ok {
		return v.(*entry)
	}
	e := &entry{}
	c.store.SetDefault(key, e)
	return e
}

// ListPush prepends value to key's list, matching Redis LPUSH semantics
// (most recent event is always index 0).
func (c *Cache) ListPush(key string, value string) {
	e := c.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values = append([]string{value}, e.values...)
}

// ListTrim keeps only the first maxLen entries, matching Redis
// LTRIM(key, 0, maxLen-1).
func (c *Cache) ListTrim(key string, maxLen int) {
	e := c.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.values) > maxLen {
		e.values = e.values[:maxLen]
	}
}

// Expire refreshes key's TTL to ttl from now, matching Redis EXPIRE.
func (c *Cache) Expire(key string, ttl time.Duration) {
	e := c.entryFor(key)
	c.store.Set(key, e, ttl)
}

// ListRange returns a snapshot of key's list in storage (newest-first)
// order, matching Redis LRANGE(key, 0, -1).
func (c *Cache) ListRange(key string) []string {
	e := c.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.values))
	copy(out, e.values)
	return out
}
