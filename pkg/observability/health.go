package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Status    string            `json:"status"`
}

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	fn   CheckFunc
	name string
}

// HealthChecker manages health checks for the service
type HealthChecker struct {
	mu      sync.RWMutex
	checks  []namedCheck
	timeout time.Duration
}

// NewHealthChecker creates a new HealthChecker. A nil pool reports the
// database as not configured (in-memory storage).
func NewHealthChecker(dbPool *pgxpool.Pool) *HealthChecker {
	h := &HealthChecker{timeout: 2 * time.Second}
	if dbPool != nil {
		h.AddCheck("database", dbPool.Ping)
	}
	return h
}

// AddCheck registers a dependency probe
func (h *HealthChecker) AddCheck(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, fn: fn})
}

// Check performs health checks and returns the status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make([]namedCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make(map[string]string, len(checks))
	overallStatus := "healthy"

	sort.Slice(checks, func(i, j int) bool { return checks[i].name < checks[j].name })
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := c.fn(checkCtx)
		cancel()

		if err != nil {
			results[c.name] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			results[c.name] = "healthy"
		}
	}
	if _, ok := results["database"]; !ok {
		results["database"] = "not configured"
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

// HealthHandler returns an HTTP handler for health checks
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(status)
	}
}
