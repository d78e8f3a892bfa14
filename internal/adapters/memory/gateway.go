package memory

import (
	"context"
	"sync"

	"github.com/kevin07696/voucher-ledger/internal/domain"
)

// GatewayStub answers status queries from a fixed table. Unknown
// references report PENDING. It implements ports.GatewayStatusChecker.
type GatewayStub struct {
	mu       sync.RWMutex
	statuses map[string]domain.TransactionStatus
	errs     map[string]error
}

// NewGatewayStub creates an empty stub
func NewGatewayStub() *GatewayStub {
	return &GatewayStub{
		statuses: make(map[string]domain.TransactionStatus),
		errs:     make(map[string]error),
	}
}

// SetStatus makes QueryStatus report status for externalRef
func (g *GatewayStub) SetStatus(externalRef string, status domain.TransactionStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[externalRef] = status
}

// SetError makes QueryStatus fail for externalRef
func (g *GatewayStub) SetError(externalRef string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[externalRef] = err
}

func (g *GatewayStub) QueryStatus(ctx context.Context, externalRef string) (domain.TransactionStatus, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if err, ok := g.errs[externalRef]; ok {
		return "", err
	}
	if status, ok := g.statuses[externalRef]; ok {
		return status, nil
	}
	return domain.TransactionStatusPending, nil
}
