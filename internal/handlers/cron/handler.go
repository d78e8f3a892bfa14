package cron

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/kevin07696/voucher-ledger/internal/scheduler"
	svcports "github.com/kevin07696/voucher-ledger/internal/services/ports"
	"github.com/kevin07696/voucher-ledger/pkg/middleware"
	"github.com/kevin07696/voucher-ledger/pkg/observability"
	"github.com/kevin07696/voucher-ledger/pkg/shutdown"
	"github.com/kevin07696/voucher-ledger/pkg/timeutil"
)

// JobRunner runs a named background job on demand
type JobRunner interface {
	RunNow(ctx context.Context, name, trigger string) (scheduler.Result, error)
	Jobs() []string
}

// Handler exposes background jobs as authenticated HTTP endpoints for an
// external scheduler
type Handler struct {
	jobs        JobRunner
	settlements svcports.SettlementService
	cadence     time.Duration
	limiter     *middleware.RateLimiter
	inflight    *shutdown.InFlightTracker
	logger      ports.Logger
	cronSecret  string
	now         timeutil.Clock
}

// NewHandler creates a new cron handler. limiter may be nil.
func NewHandler(
	jobs JobRunner,
	settlements svcports.SettlementService,
	cadence time.Duration,
	limiter *middleware.RateLimiter,
	inflight *shutdown.InFlightTracker,
	logger ports.Logger,
	cronSecret string,
) *Handler {
	return &Handler{
		jobs:        jobs,
		settlements: settlements,
		cadence:     cadence,
		limiter:     limiter,
		inflight:    inflight,
		logger:      logger,
		cronSecret:  cronSecret,
		now:         timeutil.Now,
	}
}

// RunSettlementsRequest narrows a settlement run. All fields are optional.
type RunSettlementsRequest struct {
	MerchantIDs []string `json:"merchant_ids"`
	PeriodEnd   *string  `json:"period_end"` // ISO date, defaults to today
}

// JobResponse represents the response from a job run
type JobResponse struct {
	Success     bool             `json:"success"`
	Job         string           `json:"job"`
	Result      scheduler.Result `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	ProcessedAt string           `json:"processed_at"`
}

// Register mounts the cron endpoints on mux and returns their paths
func (h *Handler) Register(mux *http.ServeMux) []string {
	var routes []string
	for _, name := range h.jobs.Jobs() {
		route := "/cron/" + name
		if name == scheduler.JobRunSettlements {
			mux.Handle(route, h.wrap(h.RunSettlements))
		} else {
			mux.Handle(route, h.wrap(h.runJob(name)))
		}
		routes = append(routes, route)
	}
	mux.HandleFunc("/cron/health", h.HealthCheck)
	return append(routes, "/cron/health")
}

// wrap applies the shared method check, authentication, rate limiting and
// in-flight tracking
func (h *Handler) wrap(next http.HandlerFunc) http.Handler {
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
			return
		}
		if !h.authenticateRequest(r) {
			h.logger.Warn("Unauthorized cron request",
				ports.String("path", r.URL.Path),
				ports.String("remote_addr", middleware.ClientIP(r)),
			)
			h.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !h.inflight.Add() {
			h.respondError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		defer h.inflight.Done()

		next(w, r)
	})
	if h.limiter != nil {
		handler = h.limiter.Middleware(handler)
	}
	return handler
}

func (h *Handler) runJob(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.logger.Info("Cron job triggered",
			ports.String("job", name),
			ports.String("remote_addr", middleware.ClientIP(r)),
			ports.String("user_agent", r.UserAgent()),
		)
		result, err := h.jobs.RunNow(r.Context(), name, "http")
		h.respondJob(w, name, result, err)
	}
}

// RunSettlements handles POST /cron/run-settlements. Without a body it settles
// the previous window for every merchant with activity; merchant_ids and
// period_end narrow the run.
func (h *Handler) RunSettlements(w http.ResponseWriter, r *http.Request) {
	var req RunSettlementsRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if len(req.MerchantIDs) == 0 && req.PeriodEnd == nil {
		h.runJob(scheduler.JobRunSettlements)(w, r)
		return
	}

	merchants := make([]uuid.UUID, 0, len(req.MerchantIDs))
	for _, raw := range req.MerchantIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid merchant id: "+raw)
			return
		}
		merchants = append(merchants, id)
	}

	periodEnd := h.now()
	if req.PeriodEnd != nil {
		parsed, err := timeutil.ParseDate("2006-01-02", *req.PeriodEnd)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid period_end format, want YYYY-MM-DD")
			return
		}
		periodEnd = parsed
	}

	start := time.Now()
	report, err := h.settlements.RunPeriodicSettlements(r.Context(), merchants, periodEnd, h.cadence)
	observability.RecordJobRun(scheduler.JobRunSettlements, "http", domain.OutcomeLabel(err), time.Since(start).Seconds())

	var result scheduler.Result
	if report != nil {
		result = scheduler.Result{
			"created": len(report.Created),
			"skipped": report.Skipped,
			"failed":  report.Failed,
		}
	}
	h.respondJob(w, scheduler.JobRunSettlements, result, err)
}

func (h *Handler) respondJob(w http.ResponseWriter, name string, result scheduler.Result, err error) {
	resp := JobResponse{
		Success:     err == nil && result["failed"] == 0,
		Job:         name,
		Result:      result,
		ProcessedAt: h.now().Format(time.RFC3339),
	}

	status := http.StatusOK
	switch {
	case domain.IsValidationError(err):
		status = http.StatusBadRequest
		resp.Error = err.Error()
	case errors.Is(err, scheduler.ErrUnknownJob):
		status = http.StatusNotFound
		resp.Error = err.Error()
	case err != nil:
		status = http.StatusInternalServerError
		resp.Error = err.Error()
	case !resp.Success:
		status = http.StatusPartialContent // some items failed
	}

	h.logger.Info("Cron job completed",
		ports.String("job", name),
		ports.Int("status", status),
		ports.Any("result", result),
	)
	h.respond(w, status, resp)
}

// authenticateRequest accepts the shared secret in X-Cron-Secret or as a
// bearer token
func (h *Handler) authenticateRequest(r *http.Request) bool {
	if h.cronSecret == "" {
		return true
	}
	if secret := r.Header.Get("X-Cron-Secret"); secret != "" {
		return subtle.ConstantTimeCompare([]byte(secret), []byte(h.cronSecret)) == 1
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func (h *Handler) respond(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", ports.Err(err))
	}
}

// HealthCheck handles GET /cron/health for monitoring
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"jobs":   h.jobs.Jobs(),
		"time":   h.now().Format(time.RFC3339),
	})
}
