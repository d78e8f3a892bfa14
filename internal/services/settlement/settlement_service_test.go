package settlement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/adapters/memory"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/services/events"
	svcports "github.com/kevin07696/voucher-ledger/internal/services/ports"
	"github.com/kevin07696/voucher-ledger/internal/services/settlement"
	"github.com/kevin07696/voucher-ledger/internal/services/transaction"
	"github.com/kevin07696/voucher-ledger/pkg/logging"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"github.com/kevin07696/voucher-ledger/pkg/timeutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	periodStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)
	now         = time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc    *settlement.Service
	txns   *transaction.Service
	outbox *memory.OutboxRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.NewZapLogger(zaptest.NewLogger(t))
	store := memory.NewStore()
	outbox := memory.NewOutboxRepository(store)
	notifier := events.NewNotifier(outbox)
	txnRepo := memory.NewTransactionRepository(store)

	return &fixture{
		svc: settlement.NewService(store, memory.NewSettlementRepository(store), txnRepo, notifier,
			resilience.TestTimeoutConfig(), logger, settlement.WithClock(timeutil.Fixed(now))),
		txns: transaction.NewService(store, txnRepo, nil, notifier,
			resilience.TestTimeoutConfig(), logger, transaction.WithClock(timeutil.Fixed(now))),
		outbox: outbox,
	}
}

func (f *fixture) record(t *testing.T, merchantID uuid.UUID, at time.Time, amount, fee string, status domain.TransactionStatus) {
	t.Helper()
	_, err := f.txns.Record(context.Background(), svcports.RecordRequest{
		Type:            domain.TransactionTypePurchase,
		Status:          status,
		UserID:          uuid.New(),
		MerchantID:      &merchantID,
		Amount:          decimal.RequireFromString(amount),
		Fee:             decimal.RequireFromString(fee),
		Currency:        "USD",
		TransactionDate: &at,
	})
	require.NoError(t, err)
}

func (f *fixture) actions(id uuid.UUID) []string {
	var out []string
	for _, e := range f.outbox.Pending(context.Background()) {
		if e.Event.EntityID == id {
			out = append(out, e.Event.Action)
		}
	}
	return out
}

func TestRunSettlement_SumsCompletedTransactionsExactly(t *testing.T) {
	f := newFixture(t)
	merchant, other := uuid.New(), uuid.New()

	for i := 0; i < 10; i++ {
		f.record(t, merchant, periodStart.Add(time.Duration(i)*time.Hour), "0.10", "0.01", domain.TransactionStatusCompleted)
	}
	// Excluded: outside the half-open period, not completed, or another merchant
	f.record(t, merchant, periodEnd, "50.00", "1.00", domain.TransactionStatusCompleted)
	f.record(t, merchant, periodStart.Add(-time.Second), "50.00", "1.00", domain.TransactionStatusCompleted)
	f.record(t, merchant, periodStart.Add(time.Hour), "50.00", "1.00", domain.TransactionStatusPending)
	f.record(t, other, periodStart.Add(time.Hour), "50.00", "1.00", domain.TransactionStatusCompleted)

	s, err := f.svc.RunSettlement(context.Background(), merchant, periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatusPending, s.Status)
	assert.Equal(t, 10, s.TransactionCount)
	assert.True(t, s.TotalRevenue.Equal(decimal.RequireFromString("1.00")), "got %s", s.TotalRevenue)
	assert.True(t, s.TotalFees.Equal(decimal.RequireFromString("0.10")))
	assert.True(t, s.NetPayoutAmount.Equal(decimal.RequireFromString("0.90")))
	assert.Equal(t, "USD", s.Currency)

	stored, err := f.svc.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, stored.ID)
}

func TestRunSettlement_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RunSettlement(context.Background(), uuid.New(), periodEnd, periodStart)
	assert.True(t, domain.IsValidationError(err))

	_, err = f.svc.RunSettlement(context.Background(), uuid.Nil, periodStart, periodEnd)
	assert.True(t, domain.IsValidationError(err))
}

func TestRunSettlement_OverlappingPeriods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	merchant := uuid.New()
	f.record(t, merchant, periodStart.Add(time.Hour), "10.00", "0.30", domain.TransactionStatusCompleted)

	first, err := f.svc.RunSettlement(ctx, merchant, periodStart, periodEnd)
	require.NoError(t, err)

	tests := []struct {
		name       string
		start, end time.Time
		overlaps   bool
	}{
		{"same period", periodStart, periodEnd, true},
		{"straddles end", periodEnd.Add(-time.Hour), periodEnd.Add(time.Hour), true},
		{"contained", periodStart.Add(time.Hour), periodStart.Add(2 * time.Hour), true},
		{"adjacent after", periodEnd, periodEnd.Add(24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RunSettlement(ctx, merchant, tt.start, tt.end)
			if tt.overlaps {
				assert.True(t, domain.IsDomainError(err, domain.ErrorCodeOverlappingPeriod), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	// Another merchant is unaffected
	_, err = f.svc.RunSettlement(ctx, uuid.New(), periodStart, periodEnd)
	assert.NoError(t, err)

	// A failed settlement releases its period
	_, err = f.svc.FailSettlement(ctx, first.ID, "bank rejected")
	require.NoError(t, err)
	rerun, err := f.svc.RunSettlement(ctx, merchant, periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, rerun.TransactionCount)
}

func TestRunSettlement_ConcurrentRunsSerialize(t *testing.T) {
	f := newFixture(t)
	merchant := uuid.New()
	f.record(t, merchant, periodStart.Add(time.Hour), "10.00", "0.30", domain.TransactionStatusCompleted)

	const workers = 6
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.RunSettlement(context.Background(), merchant, periodStart, periodEnd)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeOverlappingPeriod), "got %v", err)
	}
	assert.Equal(t, 1, created)

	list, err := f.svc.ListByMerchant(context.Background(), merchant, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPreview_DoesNotPersist(t *testing.T) {
	f := newFixture(t)
	merchant := uuid.New()
	f.record(t, merchant, periodStart.Add(time.Hour), "12.34", "0.34", domain.TransactionStatusCompleted)

	preview, err := f.svc.Preview(context.Background(), merchant, periodStart, periodEnd)
	require.NoError(t, err)
	assert.True(t, preview.NetPayoutAmount.Equal(decimal.RequireFromString("12.00")))

	list, err := f.svc.ListByMerchant(context.Background(), merchant, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.RunSettlement(context.Background(), merchant, periodStart, periodEnd)
	assert.NoError(t, err, "a preview must not reserve the period")
}

func TestSettlementTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	merchant := uuid.New()

	s, err := f.svc.RunSettlement(ctx, merchant, periodStart, periodEnd)
	require.NoError(t, err)

	_, err = f.svc.CompleteSettlement(ctx, s.ID, "")
	assert.True(t, domain.IsValidationError(err))

	done, err := f.svc.CompleteSettlement(ctx, s.ID, "BANK-REF-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatusCompleted, done.Status)
	assert.Equal(t, "BANK-REF-1", done.BankReference)
	require.NotNil(t, done.PayoutDate)
	assert.Equal(t, now, *done.PayoutDate)
	assert.Equal(t, []string{"settlement-completed"}, f.actions(s.ID))

	_, err = f.svc.FailSettlement(ctx, s.ID, "late")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidStateTransition))
	_, err = f.svc.CancelSettlement(ctx, s.ID, "late")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidStateTransition))
	assert.Equal(t, []string{"settlement-completed"}, f.actions(s.ID), "rejected transitions emit nothing")

	_, err = f.svc.CompleteSettlement(ctx, uuid.New(), "BANK-REF-2")
	assert.True(t, domain.IsNotFoundError(err))
}

func TestCancelSettlement_ReleasesPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	merchant := uuid.New()

	s, err := f.svc.RunSettlement(ctx, merchant, periodStart, periodEnd)
	require.NoError(t, err)
	cancelled, err := f.svc.CancelSettlement(ctx, s.ID, "recomputing")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatusCancelled, cancelled.Status)
	assert.Equal(t, "recomputing", cancelled.Notes)
	assert.Empty(t, f.actions(s.ID))

	_, err = f.svc.RunSettlement(ctx, merchant, periodStart, periodEnd)
	assert.NoError(t, err)
}

func TestRunPeriodicSettlements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	runAt := time.Date(2025, 3, 20, 2, 30, 0, 0, time.UTC)
	yesterday := time.Date(2025, 3, 19, 15, 0, 0, 0, time.UTC)

	f.record(t, a, yesterday, "10.00", "0.50", domain.TransactionStatusCompleted)
	f.record(t, a, yesterday.Add(time.Hour), "5.00", "0.25", domain.TransactionStatusCompleted)
	f.record(t, b, yesterday, "7.00", "0.00", domain.TransactionStatusCompleted)
	// Today is not part of the window
	f.record(t, b, runAt, "99.00", "0.00", domain.TransactionStatusCompleted)

	report, err := f.svc.RunPeriodicSettlements(ctx, nil, runAt, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 19, 0, 0, 0, 0, time.UTC), report.PeriodStart)
	assert.Equal(t, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), report.PeriodEnd)
	require.Len(t, report.Created, 2)
	assert.Zero(t, report.Failed)

	byMerchant := map[uuid.UUID]*domain.PaymentSettlement{}
	for _, s := range report.Created {
		byMerchant[s.MerchantID] = s
	}
	assert.True(t, byMerchant[a].NetPayoutAmount.Equal(decimal.RequireFromString("14.25")))
	assert.True(t, byMerchant[b].TotalRevenue.Equal(decimal.RequireFromString("7.00")))

	again, err := f.svc.RunPeriodicSettlements(ctx, nil, runAt, 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Equal(t, 2, again.Skipped)
}

func TestRunPeriodicSettlements_ExplicitMerchants(t *testing.T) {
	f := newFixture(t)
	runAt := time.Date(2025, 3, 20, 2, 30, 0, 0, time.UTC)
	quiet := uuid.New()

	report, err := f.svc.RunPeriodicSettlements(context.Background(), []uuid.UUID{quiet}, runAt, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, report.Created, 1, "explicitly listed merchants are settled even when empty")
	assert.Equal(t, 0, report.Created[0].TransactionCount)

	_, err = f.svc.RunPeriodicSettlements(context.Background(), nil, runAt, 0)
	assert.True(t, domain.IsValidationError(err))
}
