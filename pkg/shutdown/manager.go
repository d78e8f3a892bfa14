package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shutdown_duration_seconds",
		Help:    "Total time taken to shutdown gracefully",
		Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
	})

	componentShutdownDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "component_shutdown_duration_seconds",
		Help:    "Time taken to shutdown individual components",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 20, 25, 30},
	}, []string{"component"})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutdown_errors_total",
		Help: "Total number of shutdown errors by component",
	}, []string{"component"})
)

// ShutdownFunc stops one component
type ShutdownFunc func(context.Context) error

type component struct {
	name string
	fn   ShutdownFunc
}

// Manager stops registered components in reverse registration order, one at
// a time, sharing one overall deadline. Register producers of work (servers,
// schedulers) after what they depend on (database, publisher).
type Manager struct {
	logger     ports.Logger
	mu         sync.Mutex
	components []component
	timeout    time.Duration
	once       sync.Once
}

// NewManager creates a new shutdown manager
func NewManager(logger ports.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds a component to stop during shutdown
func (sm *Manager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.components = append(sm.components, component{name: name, fn: fn})
}

// RegisterCloser registers a component with a Close method
func (sm *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	sm.Register(name, func(context.Context) error { return closer.Close() })
}

// RegisterNoErr registers a shutdown function that cannot fail
func (sm *Manager) RegisterNoErr(name string, fn func()) {
	sm.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// WaitForShutdown blocks until SIGINT or SIGTERM, or until ctx is done, then
// shuts everything down
func (sm *Manager) WaitForShutdown(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		sm.logger.Info("Received shutdown signal", ports.Stringer("signal", sig))
	case <-ctx.Done():
		sm.logger.Info("Shutdown requested")
	}
	sm.Shutdown()
}

// Shutdown stops all components. Only the first call has an effect.
func (sm *Manager) Shutdown() map[string]error {
	var errs map[string]error
	sm.once.Do(func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
		defer cancel()

		errs = sm.shutdownComponents(ctx)
		shutdownDuration.Observe(time.Since(start).Seconds())

		if len(errs) > 0 {
			sm.logger.Error("Graceful shutdown completed with errors",
				ports.Int("error_count", len(errs)),
				ports.Duration("elapsed", time.Since(start)),
			)
			return
		}
		sm.logger.Info("Graceful shutdown completed", ports.Duration("elapsed", time.Since(start)))
	})
	return errs
}

func (sm *Manager) shutdownComponents(ctx context.Context) map[string]error {
	sm.mu.Lock()
	components := make([]component, len(sm.components))
	copy(components, sm.components)
	sm.mu.Unlock()

	errs := make(map[string]error)
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if ctx.Err() != nil {
			errs[c.name] = ctx.Err()
			shutdownErrors.WithLabelValues(c.name).Inc()
			continue
		}

		start := time.Now()
		if err := c.fn(ctx); err != nil {
			errs[c.name] = err
			shutdownErrors.WithLabelValues(c.name).Inc()
			sm.logger.Error("Component shutdown failed",
				ports.String("component", c.name),
				ports.Err(err),
			)
		} else {
			sm.logger.Debug("Component shut down", ports.String("component", c.name))
		}
		componentShutdownDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	}
	return errs
}
