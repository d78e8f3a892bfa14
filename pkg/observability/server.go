package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsHandler serves Prometheus metrics, health and readiness
func NewMetricsHandler(healthChecker *HealthChecker) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	if healthChecker != nil {
		mux.HandleFunc("/health", healthChecker.HealthHandler())
		mux.HandleFunc("/ready", healthChecker.HealthHandler())
	} else {
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})
	}
	return mux
}

// StartMetricsServer starts an HTTP server for Prometheus metrics and health checks
func StartMetricsServer(port string, healthChecker *HealthChecker, logger ports.Logger) *http.Server {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      NewMetricsHandler(healthChecker),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", ports.Err(err))
		}
	}()

	logger.Info("Metrics server started", ports.String("port", port))
	return server
}

// ShutdownMetricsServer gracefully shuts down the metrics server
func ShutdownMetricsServer(ctx context.Context, server *http.Server) error {
	return server.Shutdown(ctx)
}
