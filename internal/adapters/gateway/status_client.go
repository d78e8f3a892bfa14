package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
)

// StatusClientConfig contains configuration for the gateway status client
type StatusClientConfig struct {
	BaseURL string // e.g., "https://gateway.example.com/v1"
	APIKey  string
	Timeout time.Duration
}

// DefaultStatusClientConfig returns default configuration
func DefaultStatusClientConfig(baseURL string) *StatusClientConfig {
	return &StatusClientConfig{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}
}

// StatusClient queries the payment gateway for the authoritative status of
// a transaction. It implements ports.GatewayStatusChecker.
type StatusClient struct {
	config     *StatusClientConfig
	httpClient ports.HTTPClient
	breaker    *resilience.CircuitBreaker
	logger     ports.Logger
}

// NewStatusClient creates a new gateway status client
func NewStatusClient(config *StatusClientConfig, httpClient ports.HTTPClient, logger ports.Logger) *StatusClient {
	cbConfig := resilience.DefaultCircuitBreakerConfig()
	// An unknown reference is an answer, not an outage
	cbConfig.IsFailure = func(err error) bool { return !domain.IsNotFoundError(err) }

	return &StatusClient{
		config:     config,
		httpClient: httpClient,
		breaker:    resilience.NewCircuitBreaker(cbConfig),
		logger:     logger,
	}
}

type statusResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Message   string `json:"message,omitempty"`
}

// gatewayStatuses maps gateway vocabulary onto transaction statuses
var gatewayStatuses = map[string]domain.TransactionStatus{
	"pending":    domain.TransactionStatusPending,
	"processing": domain.TransactionStatusPending,
	"authorized": domain.TransactionStatusPending,
	"approved":   domain.TransactionStatusCompleted,
	"captured":   domain.TransactionStatusCompleted,
	"settled":    domain.TransactionStatusCompleted,
	"completed":  domain.TransactionStatusCompleted,
	"declined":   domain.TransactionStatusFailed,
	"failed":     domain.TransactionStatusFailed,
	"error":      domain.TransactionStatusFailed,
	"voided":     domain.TransactionStatusCancelled,
	"cancelled":  domain.TransactionStatusCancelled,
	"canceled":   domain.TransactionStatusCancelled,
	"refunded":   domain.TransactionStatusRefunded,
}

// ParseGatewayStatus maps a gateway status string onto a transaction status
func ParseGatewayStatus(s string) (domain.TransactionStatus, error) {
	status, ok := gatewayStatuses[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown gateway status %q", s)
	}
	return status, nil
}

// QueryStatus fetches the gateway's view of externalRef
func (c *StatusClient) QueryStatus(ctx context.Context, externalRef string) (domain.TransactionStatus, error) {
	if externalRef == "" {
		return "", domain.NewDomainError(domain.ErrorCodeValidationMissingField, "external reference is required")
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	var status domain.TransactionStatus
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		status, err = c.query(ctx, externalRef)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return "", domain.WrapError(domain.ErrorCodeUpstreamTimeout, "gateway unavailable", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "", domain.WrapError(domain.ErrorCodeUpstreamTimeout, "gateway status query timed out", err)
	}
	return status, err
}

func (c *StatusClient) query(ctx context.Context, externalRef string) (domain.TransactionStatus, error) {
	endpoint := fmt.Sprintf("%s/transactions/%s/status", strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(externalRef))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Gateway status request failed",
			ports.String("external_ref", externalRef),
			ports.Err(err),
		)
		return "", fmt.Errorf("gateway status request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Gateway status response",
		ports.String("external_ref", externalRef),
		ports.Int("status_code", resp.StatusCode),
		ports.Duration("duration", time.Since(startTime)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", domain.Errorf(domain.ErrorCodeTxnNotFound, "gateway has no transaction %s", externalRef)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed statusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse gateway response: %w", err)
	}
	return ParseGatewayStatus(parsed.Status)
}

// CircuitState reports the breaker state for health reporting
func (c *StatusClient) CircuitState() resilience.CircuitState {
	return c.breaker.State()
}
