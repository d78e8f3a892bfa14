package secrets

import (
	"sync"
	"time"
)

// secretCache keeps resolved secrets for a TTL so hot paths do not call the
// secret manager on every request
type secretCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
	ttl     time.Duration
	enabled bool
}

type cacheEntry struct {
	expiresAt time.Time
	value     string
}

func newSecretCache(enabled bool, ttl time.Duration) *secretCache {
	return &secretCache{
		entries: make(map[string]cacheEntry),
		enabled: enabled && ttl > 0,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *secretCache) get(key string) (string, bool) {
	if !c.enabled {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.value, true
}

func (c *secretCache) set(key, value string) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}
