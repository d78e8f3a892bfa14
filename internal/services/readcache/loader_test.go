package readcache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/adapters/memory"
	"github.com/kevin07696/voucher-ledger/internal/services/readcache"
	"github.com/kevin07696/voucher-ledger/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenCache) Invalidate(context.Context, ...string) error {
	return errors.New("connection refused")
}

func TestLoader_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewZapLogger(zaptest.NewLogger(t))
	loader := readcache.NewLoader[item](memory.NewCache(10), "test", "item:", time.Minute, logger)

	var loads int
	count := 1
	load := func(context.Context) (*item, error) {
		loads++
		return &item{Name: "a", Count: count}, nil
	}

	got, err := loader.Get(ctx, "a", load)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)

	count = 2
	got, err = loader.Get(ctx, "a", load)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count, "served from cache")
	assert.Equal(t, 1, loads)

	loader.Invalidate(ctx, "a")
	got, err = loader.Get(ctx, "a", load)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, 2, loads)
}

func TestLoader_LoadErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewZapLogger(zaptest.NewLogger(t))
	cache := memory.NewCache(10)
	loader := readcache.NewLoader[item](cache, "test", "item:", time.Minute, logger)

	boom := errors.New("not found")
	_, err := loader.Get(ctx, "x", func(context.Context) (*item, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Len())
}

func TestLoader_CacheFailuresDegradeToLoad(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewZapLogger(zaptest.NewLogger(t))
	loader := readcache.NewLoader[item](brokenCache{}, "test", "item:", time.Minute, logger)

	got, err := loader.Get(ctx, "a", func(context.Context) (*item, error) { return &item{Name: "a"}, nil })
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)

	loader.Invalidate(ctx, "a")
}

func TestLoader_NilCache(t *testing.T) {
	logger := logging.NewZapLogger(zaptest.NewLogger(t))
	loader := readcache.NewLoader[item](nil, "test", "item:", 0, logger)

	var loads int
	for i := 0; i < 3; i++ {
		_, err := loader.Get(context.Background(), "a", func(context.Context) (*item, error) {
			loads++
			return &item{}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, loads)
}

func TestLoader_ConcurrentCallersGetDistinctCopies(t *testing.T) {
	logger := logging.NewZapLogger(zaptest.NewLogger(t))
	loader := readcache.NewLoader[item](memory.NewCache(10), "test", "item:", time.Minute, logger)

	var loads int32
	var wg sync.WaitGroup
	results := make([]*item, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := loader.Get(context.Background(), "k", func(context.Context) (*item, error) {
				atomic.AddInt32(&loads, 1)
				time.Sleep(20 * time.Millisecond)
				return &item{Name: "k"}, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&loads), int32(8))
	results[0].Count = 99
	for _, r := range results[1:] {
		assert.Equal(t, 0, r.Count)
	}
}
