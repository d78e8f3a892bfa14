package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_http_requests_total",
			Help: "Outbound HTTP requests by upstream, status code and method",
		},
		[]string{"upstream", "code", "method"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_http_request_duration_seconds",
			Help:    "Outbound HTTP request latency by upstream",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"upstream", "code", "method"},
	)
)

// HTTPClientConfig holds transport settings for one upstream
type HTTPClientConfig struct {
	// Upstream labels the client's metrics
	Upstream string

	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	KeepAlive             time.Duration

	MinTLSVersion uint16
}

// GatewayClientConfig returns config for payment gateway status queries.
// The gateway is a single host; the reconciliation sweep queries it one
// transaction at a time, so a small pool is enough.
func GatewayClientConfig() *HTTPClientConfig {
	return &HTTPClientConfig{
		Upstream:            "gateway",
		MaxIdleConnsPerHost: 8,
		MaxConnsPerHost:     16,
		IdleConnTimeout:     90 * time.Second,

		// A slow gateway must not stall the sweep
		DialTimeout:           5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		KeepAlive:             60 * time.Second,

		MinTLSVersion: tls.VersionTLS12,
	}
}

// NewHTTPClient creates a pooled HTTP client whose requests are counted and
// timed per upstream
func NewHTTPClient(cfg *HTTPClientConfig, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        cfg.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,

		TLSClientConfig:   &tls.Config{MinVersion: cfg.MinTLSVersion},
		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: instrument(cfg.Upstream, transport),
		Timeout:   timeout,
	}
}

func instrument(upstream string, next http.RoundTripper) http.RoundTripper {
	if upstream == "" {
		upstream = "unknown"
	}
	labels := prometheus.Labels{"upstream": upstream}
	return promhttp.InstrumentRoundTripperCounter(upstreamRequests.MustCurryWith(labels),
		promhttp.InstrumentRoundTripperDuration(upstreamDuration.MustCurryWith(labels), next),
	)
}
