// Package readcache provides read-through caching of aggregates over a
// ports.Cache. Writers invalidate after commit; entries carry a short TTL so
// a read racing an invalidation is stale for at most that long.
package readcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/kevin07696/voucher-ledger/pkg/encoding"
	"github.com/kevin07696/voucher-ledger/pkg/observability"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL bounds staleness of cached reads
const DefaultTTL = 30 * time.Second

// Loader caches values of T under prefix+key
type Loader[T any] struct {
	cache  ports.Cache
	logger ports.Logger
	group  singleflight.Group
	name   string
	prefix string
	ttl    time.Duration
}

// NewLoader creates a loader. A nil cache disables caching.
func NewLoader[T any](cache ports.Cache, name, prefix string, ttl time.Duration, logger ports.Logger) *Loader[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Loader[T]{
		cache:  cache,
		logger: logger,
		name:   name,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (l *Loader[T]) cacheKey(key string) string {
	return l.prefix + key
}

// Get returns the cached value for key or calls load and caches its result.
// Concurrent misses for the same key share one load. Cache failures degrade
// to a direct load.
func (l *Loader[T]) Get(ctx context.Context, key string, load func(ctx context.Context) (*T, error)) (*T, error) {
	if l.cache == nil {
		return load(ctx)
	}

	ck := l.cacheKey(key)
	if raw, ok, err := l.cache.Get(ctx, ck); err != nil {
		observability.RecordCacheLookup(l.name, "error")
		l.logger.Warn("Cache read failed",
			ports.String("cache", l.name),
			ports.String("key", ck),
			ports.Err(err),
		)
	} else if ok {
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			observability.RecordCacheLookup(l.name, "hit")
			return &value, nil
		}
		l.logger.Warn("Discarding undecodable cache entry", ports.String("key", ck))
	}

	observability.RecordCacheLookup(l.name, "miss")
	v, err, _ := l.group.Do(ck, func() (interface{}, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := encoding.EncodeJSON(value); err == nil {
			if err := l.cache.Set(ctx, ck, raw, l.ttl); err != nil {
				l.logger.Warn("Cache write failed",
					ports.String("cache", l.name),
					ports.String("key", ck),
					ports.Err(err),
				)
			}
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}

	// Callers sharing a load must not share the pointer
	value := *(v.(*T))
	return &value, nil
}

// Invalidate drops keys. Failures are logged, not returned: the write that
// triggered the invalidation has already committed.
func (l *Loader[T]) Invalidate(ctx context.Context, keys ...string) {
	if l.cache == nil || len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = l.cacheKey(k)
	}
	if err := l.cache.Invalidate(ctx, full...); err != nil {
		l.logger.Warn("Cache invalidation failed",
			ports.String("cache", l.name),
			ports.Any("keys", full),
			ports.Err(err),
		)
	}
}
