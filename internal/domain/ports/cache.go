package ports

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value cache with per-entry TTL.
// Callers invalidate keys on every write to the underlying entity.
type Cache interface {
	// Get returns the cached value and whether it was present
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes keys
	Invalidate(ctx context.Context, keys ...string) error
}
