package ports

import (
	"context"

	"github.com/kevin07696/voucher-ledger/internal/domain"
)

// GatewayStatusChecker asks the originating payment gateway for the
// authoritative status of a transaction. Used by the stale-PENDING sweep.
type GatewayStatusChecker interface {
	QueryStatus(ctx context.Context, externalRef string) (domain.TransactionStatus, error)
}
