package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the application's timeout hierarchy
//
// Timeout Hierarchy (from outermost to innermost):
//
//	HTTP Handler (30s) / Cron Job (5m)
//	  ↓
//	Redemption saga (20s) / Settlement run (2m)
//	  ↓
//	Service operation (10s)
//	  ↓
//	Gateway query / event publish (5s)
//
// Every saga step is its own database transaction, so a timeout between steps
// leaves committed steps durable and later steps resumable.
type TimeoutConfig struct {
	// Handler layer timeouts
	HTTPHandler time.Duration // Overall request timeout (default: 30s)
	CronJob     time.Duration // Scheduled job execution timeout (default: 5 minutes)

	// Service layer timeouts
	Redemption time.Duration // Whole redemption saga (default: 20s)
	Settlement time.Duration // One merchant settlement run (default: 2 minutes)
	Service    time.Duration // Single-step service operation (default: 10s)

	// External timeouts (adapters)
	GatewayQuery time.Duration // Status re-query against the gateway (default: 5s)
	Publish      time.Duration // One event publication attempt (default: 5s)
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 30 * time.Second,
		CronJob:     5 * time.Minute,

		Redemption: 20 * time.Second,
		Settlement: 2 * time.Minute,
		Service:    10 * time.Second,

		GatewayQuery: 5 * time.Second,
		Publish:      5 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:  5 * time.Second,
		CronJob:      30 * time.Second,
		Redemption:   4 * time.Second,
		Settlement:   10 * time.Second,
		Service:      2 * time.Second,
		GatewayQuery: 1 * time.Second,
		Publish:      1 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// CronContext creates a context with timeout for scheduled jobs
func (tc *TimeoutConfig) CronContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CronJob)
}

// RedemptionContext creates a context bounding a whole redemption saga
func (tc *TimeoutConfig) RedemptionContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Redemption)
}

// SettlementContext creates a context bounding one settlement run
func (tc *TimeoutConfig) SettlementContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Settlement)
}

// ServiceContext creates a context with timeout for service layer operations
func (tc *TimeoutConfig) ServiceContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Service)
}

// GatewayContext creates a context for a gateway status query
func (tc *TimeoutConfig) GatewayContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.GatewayQuery)
}

// PublishContext creates a context for one event publication attempt
func (tc *TimeoutConfig) PublishContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Publish)
}
