package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"golang.org/x/time/rate"
)

const (
	defaultMaxClients      = 10000
	defaultCleanupInterval = 5 * time.Minute
)

// clientLimiter tracks a rate limiter and its last access time
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter limits requests per client IP with a token bucket per client
type RateLimiter struct {
	limiters        map[string]*clientLimiter
	mu              sync.Mutex
	rate            rate.Limit
	burst           int
	maxClients      int
	cleanupInterval time.Duration
	logger          ports.Logger
	now             func() time.Time
	stopOnce        sync.Once
	stopCh          chan struct{}
}

// NewRateLimiter creates a limiter allowing requestsPerSecond per client with
// the given burst, and starts its cleanup loop. Call Shutdown to stop it.
func NewRateLimiter(requestsPerSecond float64, burst int, logger ports.Logger) *RateLimiter {
	rl := newRateLimiter(requestsPerSecond, burst, logger, time.Now)
	go rl.cleanupLoop()
	return rl
}

func newRateLimiter(requestsPerSecond float64, burst int, logger ports.Logger, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		limiters:        make(map[string]*clientLimiter),
		rate:            rate.Limit(requestsPerSecond),
		burst:           burst,
		maxClients:      defaultMaxClients,
		cleanupInterval: defaultCleanupInterval,
		logger:          logger,
		now:             now,
		stopCh:          make(chan struct{}),
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			if removed := rl.cleanup(); removed > 0 {
				rl.logger.Debug("Rate limiter evicted idle clients", ports.Int("removed", removed))
			}
		}
	}
}

// cleanup drops clients idle for longer than the cleanup interval
func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.cleanupInterval)
	removed := 0
	for key, cl := range rl.limiters {
		if cl.lastAccess.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Shutdown stops the cleanup loop. Safe to call more than once.
func (rl *RateLimiter) Shutdown() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// reserve takes a token for key and returns how long the caller must wait
// when none is available
func (rl *RateLimiter) reserve(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= rl.maxClients {
			rl.evictOldest()
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastAccess = now

	if cl.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := cl.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

func (rl *RateLimiter) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, cl := range rl.limiters {
		if oldestKey == "" || cl.lastAccess.Before(oldest) {
			oldestKey, oldest = key, cl.lastAccess
		}
	}
	delete(rl.limiters, oldestKey)
}

// Middleware rejects requests over the limit with 429 and a Retry-After header
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := ClientIP(r)
		if ok, wait := rl.reserve(client); !ok {
			rl.logger.Warn("Rate limit exceeded",
				ports.String("client_ip", client),
				ports.String("path", r.URL.Path),
			)
			seconds := int(math.Ceil(wait.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPHandlerFunc wraps a handler function with rate limiting
func (rl *RateLimiter) HTTPHandlerFunc(handler http.HandlerFunc) http.HandlerFunc {
	return rl.Middleware(handler).ServeHTTP
}

// ClientIP returns the first X-Forwarded-For hop, else the host of RemoteAddr
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
