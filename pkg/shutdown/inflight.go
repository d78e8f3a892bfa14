package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// InFlightTracker counts running work so shutdown can wait for it. Once
// shutdown starts no new work is admitted.
type InFlightTracker struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	closing bool
	name    string
	logger  ports.Logger
}

// NewInFlightTracker creates a new in-flight work tracker
func NewInFlightTracker(name string, logger ports.Logger) *InFlightTracker {
	return &InFlightTracker{name: name, logger: logger}
}

// Add admits one unit of work. It returns false once shutdown has begun.
func (t *InFlightTracker) Add() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return false
	}
	t.wg.Add(1)
	return true
}

// Done marks one unit of work finished
func (t *InFlightTracker) Done() {
	t.wg.Done()
}

// Shutdown stops admitting work and waits for running work or ctx
func (t *InFlightTracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closing = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.logger.Warn("Shutdown timeout with work still running", ports.String("tracker", t.name))
		return ctx.Err()
	}
}

// PeriodicWorker runs a function on a fixed interval in one goroutine, so
// runs never overlap
type PeriodicWorker struct {
	name     string
	interval time.Duration
	logger   ports.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPeriodicWorker creates a new periodic worker
func NewPeriodicWorker(name string, interval time.Duration, logger ports.Logger) *PeriodicWorker {
	return &PeriodicWorker{name: name, interval: interval, logger: logger, done: make(chan struct{})}
}

// Start runs work immediately and then every interval until Shutdown
func (w *PeriodicWorker) Start(work func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		work(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				work(ctx)
			}
		}
	}()
	w.logger.Debug("Periodic worker started",
		ports.String("worker", w.name),
		ports.Duration("interval", w.interval),
	)
}

// Shutdown cancels the worker and waits for the current run or ctx
func (w *PeriodicWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		} else {
			close(w.done)
		}
	})
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("Periodic worker did not stop in time", ports.String("worker", w.name))
		return ctx.Err()
	}
}
