package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevin07696/voucher-ledger/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManager_ShutdownRunsInReverseOrder(t *testing.T) {
	m := NewManager(logging.NewZapLogger(zaptest.NewLogger(t)), time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}
	m.RegisterNoErr("database", record("database"))
	m.RegisterNoErr("publisher", record("publisher"))
	m.RegisterNoErr("server", record("server"))

	errs := m.Shutdown()
	assert.Empty(t, errs)
	assert.Equal(t, []string{"server", "publisher", "database"}, order)

	// second call is a no-op
	assert.Nil(t, m.Shutdown())
	assert.Len(t, order, 3)
}

func TestManager_CollectsErrors(t *testing.T) {
	m := NewManager(logging.NewZapLogger(zaptest.NewLogger(t)), time.Second)
	boom := errors.New("boom")

	var ran atomic.Bool
	m.RegisterNoErr("first", func() { ran.Store(true) })
	m.Register("broken", func(context.Context) error { return boom })

	errs := m.Shutdown()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs["broken"], boom)
	assert.True(t, ran.Load(), "a failing component must not stop the rest")
}

func TestManager_DeadlineSkipsRemaining(t *testing.T) {
	m := NewManager(logging.NewZapLogger(zaptest.NewLogger(t)), 20*time.Millisecond)

	var ran atomic.Bool
	m.RegisterNoErr("last", func() { ran.Store(true) })
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	errs := m.Shutdown()
	assert.ErrorIs(t, errs["slow"], context.DeadlineExceeded)
	assert.ErrorIs(t, errs["last"], context.DeadlineExceeded)
	assert.False(t, ran.Load())
}

func TestInFlightTracker(t *testing.T) {
	tracker := NewInFlightTracker("cron", logging.NewZapLogger(zaptest.NewLogger(t)))

	require.True(t, tracker.Add())

	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		tracker.Done()
		close(released)
	}()

	require.NoError(t, tracker.Shutdown(context.Background()))
	<-released
	assert.False(t, tracker.Add(), "no work admitted after shutdown")
}

func TestInFlightTracker_ShutdownTimeout(t *testing.T) {
	tracker := NewInFlightTracker("cron", logging.NewZapLogger(zaptest.NewLogger(t)))
	require.True(t, tracker.Add())
	defer tracker.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tracker.Shutdown(ctx), context.DeadlineExceeded)
}

func TestPeriodicWorker(t *testing.T) {
	w := NewPeriodicWorker("tick", 5*time.Millisecond, logging.NewZapLogger(zaptest.NewLogger(t)))

	var runs atomic.Int32
	w.Start(func(context.Context) { runs.Add(1) })

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, w.Shutdown(context.Background()))

	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load(), "no runs after shutdown")
}

func TestPeriodicWorker_ShutdownBeforeStart(t *testing.T) {
	w := NewPeriodicWorker("idle", time.Second, logging.NewZapLogger(zaptest.NewLogger(t)))
	assert.NoError(t, w.Shutdown(context.Background()))
	assert.NoError(t, w.Shutdown(context.Background()))
}
