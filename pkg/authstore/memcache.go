package authstore

import (
	"sync"
	"time"
)

// MemCache is a sync.Map-backed TTL cache of authorized (uid, server) pairs,
// adapted from the teacher's pkg/storage/memstore.PdataStore.
type MemCache struct {
	entries sync.Map
}

type cacheEntry struct {
	expiresAt time.Time
}

// NewMemCache creates an empty cache.
func NewMemCache() *MemCache {
	return &MemCache{}
}

func cacheKeyOf(uid, server string) string {
	return "haruki_sekai_api:" + uid + ":" + server
}

// Get reports whether (uid, server) has an unexpired authorization cached.
func (c *MemCache) Get(uid, server string) bool {
	v, ok := c.entries.Load(cacheKeyOf(uid, server))
	if !ok {
		return false
	}
	e := v.(cacheEntry)
	if time.Now().After(e.expiresAt) {
		c.entries.Delete(cacheKeyOf(uid, server))
		return false
	}
	return true
}

// Set remembers that (uid, server) is authorized for ttl.
func (c *MemCache) Set(uid, server string, ttl time.Duration) {
	c.entries.Store(cacheKeyOf(uid, server), cacheEntry{expiresAt: time.Now().Add(ttl)})
}
