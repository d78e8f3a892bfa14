package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kevin07696/voucher-ledger/pkg/logging"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestRateLimiter_Middleware(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, 2, logging.NewZapLogger(zaptest.NewLogger(t)), func() time.Time { return now })
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/cron/flush-outbox", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1001").Code)

	limited := call("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:1000").Code, "clients are limited independently")

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1003").Code, "tokens refill over time")
}

func TestRateLimiter_CleanupAndEviction(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(10, 10, logging.NewZapLogger(zaptest.NewLogger(t)), func() time.Time { return now })
	rl.maxClients = 2

	rl.reserve("a")
	now = now.Add(time.Second)
	rl.reserve("b")
	now = now.Add(time.Second)
	rl.reserve("c")
	assert.Len(t, rl.limiters, 2)
	assert.NotContains(t, rl.limiters, "a", "oldest client is evicted at capacity")

	now = now.Add(defaultCleanupInterval + time.Second)
	assert.Equal(t, 2, rl.cleanup())
	assert.Empty(t, rl.limiters)

	rl.Shutdown()
	rl.Shutdown()
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}
