package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/pkg/logging"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *StatusClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultStatusClientConfig(server.URL)
	cfg.APIKey = "test-key"
	return NewStatusClient(cfg, server.Client(), logging.NewZapLogger(zaptest.NewLogger(t)))
}

func TestStatusClient_QueryStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		want       domain.TransactionStatus
		wantCode   domain.ErrorCode
		wantErr    bool
	}{
		{"settled", http.StatusOK, `{"status":"settled","reference":"gw-1"}`, domain.TransactionStatusCompleted, "", false},
		{"declined", http.StatusOK, `{"status":"DECLINED"}`, domain.TransactionStatusFailed, "", false},
		{"still processing", http.StatusOK, `{"status":"processing"}`, domain.TransactionStatusPending, "", false},
		{"voided", http.StatusOK, `{"status":"voided"}`, domain.TransactionStatusCancelled, "", false},
		{"unknown reference", http.StatusNotFound, `{}`, "", domain.ErrorCodeTxnNotFound, true},
		{"server error", http.StatusBadGateway, `upstream down`, "", "", true},
		{"unknown vocabulary", http.StatusOK, `{"status":"teleported"}`, "", "", true},
		{"malformed body", http.StatusOK, `not json`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transactions/gw-1/status", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := client.QueryStatus(context.Background(), "gw-1")
			if tt.wantErr {
				require.Error(t, err)
				if tt.wantCode != "" {
					assert.True(t, domain.IsDomainError(err, tt.wantCode), "got %v", err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusClient_CircuitOpensOnOutage(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 5; i++ {
		_, err := client.QueryStatus(context.Background(), "gw-1")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, client.CircuitState())

	_, err := client.QueryStatus(context.Background(), "gw-1")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeUpstreamTimeout), "got %v", err)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls), "open circuit must short-circuit")
}

func TestStatusClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 10; i++ {
		_, err := client.QueryStatus(context.Background(), "gw-missing")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateClosed, client.CircuitState())
}

func TestStatusClient_RequiresReference(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not call the gateway")
	})
	_, err := client.QueryStatus(context.Background(), "")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationMissingField))
}
