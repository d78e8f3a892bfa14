package memory

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	memoryCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memory_cache_size",
		Help: "Current number of entries in the in-process cache",
	})

	memoryCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memory_cache_evictions_total",
		Help: "Total number of in-process cache evictions due to size limit",
	})
)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-process TTL cache implementing ports.Cache.
//
// Eviction is approximate LRU: when full, the entry with the oldest access
// time found by sync.Map.Range is dropped.
type Cache struct {
	entries     sync.Map // map[string]*cacheEntry
	accessTimes sync.Map // map[string]time.Time
	mu          sync.Mutex
	maxSize     int
	size        int
	now         func() time.Time
}

// NewCache creates a cache holding at most maxSize entries
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache{maxSize: maxSize, now: time.Now}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := v.(*cacheEntry)
	now := c.now()
	if !now.Before(entry.expiresAt) {
		c.remove(key)
		return nil, false, nil
	}
	c.accessTimes.Store(key, now)
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now()
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, loaded := c.entries.Load(key); !loaded {
		if c.size >= c.maxSize {
			c.evictOldestLocked()
		}
		c.size++
	}
	c.entries.Store(key, &cacheEntry{value: stored, expiresAt: now.Add(ttl)})
	c.accessTimes.Store(key, now)
	memoryCacheSize.Set(float64(c.size))
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		c.remove(key)
	}
	return nil
}

// Len returns the number of cached entries, expired ones included
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *Cache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

func (c *Cache) removeLocked(key string) {
	if _, loaded := c.entries.LoadAndDelete(key); loaded {
		c.size--
		memoryCacheSize.Set(float64(c.size))
	}
	c.accessTimes.Delete(key)
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	found := false

	c.accessTimes.Range(func(k, v interface{}) bool {
		at := v.(time.Time)
		if !found || at.Before(oldest) {
			oldestKey, oldest, found = k.(string), at, true
		}
		return true
	})

	if found {
		c.removeLocked(oldestKey)
		memoryCacheEvictions.Inc()
	}
}
