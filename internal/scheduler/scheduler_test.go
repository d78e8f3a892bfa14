package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/config"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/scheduler"
	"github.com/kevin07696/voucher-ledger/internal/services/events"
	svcports "github.com/kevin07696/voucher-ledger/internal/services/ports"
	"github.com/kevin07696/voucher-ledger/pkg/logging"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"github.com/kevin07696/voucher-ledger/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newScheduler(t *testing.T, jobs ...scheduler.Job) *scheduler.Scheduler {
	t.Helper()
	s := scheduler.New(jobs, resilience.TestTimeoutConfig(), logging.NewZapLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func TestScheduler_RunsEnabledJobs(t *testing.T) {
	var ticks, disabled atomic.Int32
	s := newScheduler(t,
		scheduler.Job{Name: "tick", Interval: 5 * time.Millisecond, Run: func(context.Context) (scheduler.Result, error) {
			ticks.Add(1)
			return nil, nil
		}},
		scheduler.Job{Name: "off", Interval: 0, Run: func(context.Context) (scheduler.Result, error) {
			disabled.Add(1)
			return nil, nil
		}},
	)
	s.Start()

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, s.Shutdown(context.Background()))
	assert.Zero(t, disabled.Load())
}

func TestScheduler_FailingJobKeepsRunning(t *testing.T) {
	var runs atomic.Int32
	s := newScheduler(t, scheduler.Job{Name: "broken", Interval: 5 * time.Millisecond, Run: func(context.Context) (scheduler.Result, error) {
		runs.Add(1)
		return nil, errors.New("boom")
	}})
	s.Start()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestScheduler_RunNow(t *testing.T) {
	s := newScheduler(t, scheduler.Job{Name: "count", Interval: time.Hour, Run: func(ctx context.Context) (scheduler.Result, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok, "job runs under a deadline")
		return scheduler.Result{"done": 1}, nil
	}})

	result, err := s.RunNow(context.Background(), "count", "http")
	require.NoError(t, err)
	assert.Equal(t, scheduler.Result{"done": 1}, result)

	_, err = s.RunNow(context.Background(), "nope", "http")
	assert.ErrorIs(t, err, scheduler.ErrUnknownJob)
	assert.Equal(t, []string{"count"}, s.Jobs())
}

type fakeVouchers struct {
	svcports.VoucherService
	expireAt   time.Time
	resumeFrom time.Time
}

func (f *fakeVouchers) ExpireDue(_ context.Context, now time.Time, _ int) (int, error) {
	f.expireAt = now
	return 4, nil
}

func (f *fakeVouchers) ResumePendingRedemptions(_ context.Context, olderThan time.Time, _ int) (*svcports.ResumeReport, error) {
	f.resumeFrom = olderThan
	return &svcports.ResumeReport{Scanned: 2, Completed: 1, Failed: 1}, nil
}

type fakeTransactions struct {
	svcports.TransactionService
	olderThan time.Time
}

func (f *fakeTransactions) ReconcileStale(_ context.Context, olderThan time.Time, _ int) (*svcports.ReconcileReport, error) {
	f.olderThan = olderThan
	return &svcports.ReconcileReport{Scanned: 3, Completed: 2, StillPending: 1}, nil
}

type fakeSettlements struct {
	svcports.SettlementService
	periodEnd time.Time
	cadence   time.Duration
}

func (f *fakeSettlements) RunPeriodicSettlements(_ context.Context, merchants []uuid.UUID, periodEnd time.Time, cadence time.Duration) (*svcports.PeriodicReport, error) {
	f.periodEnd = periodEnd
	f.cadence = cadence
	return &svcports.PeriodicReport{Created: []*domain.PaymentSettlement{{}}, Skipped: 1}, nil
}

type fakeOutbox struct{ batch int }

func (f *fakeOutbox) Flush(_ context.Context, batch int) (*events.FlushReport, error) {
	f.batch = batch
	return &events.FlushReport{Due: 5, Published: 4, Failed: 1}, nil
}

func TestTasks(t *testing.T) {
	now := time.Date(2025, 3, 21, 6, 0, 0, 0, time.UTC)
	vouchers := &fakeVouchers{}
	txns := &fakeTransactions{}
	settlements := &fakeSettlements{}
	outbox := &fakeOutbox{}

	cfg := config.Default().Jobs
	tasks := scheduler.Tasks{
		Vouchers:     vouchers,
		Transactions: txns,
		Settlements:  settlements,
		Outbox:       outbox,
		Clock:        timeutil.Fixed(now),
		Config:       cfg,
	}
	s := newScheduler(t, tasks.Jobs()...)
	ctx := context.Background()

	assert.Equal(t, []string{
		scheduler.JobExpireVouchers,
		scheduler.JobReconcileTransactions,
		scheduler.JobResumeRedemptions,
		scheduler.JobFlushOutbox,
		scheduler.JobRunSettlements,
	}, s.Jobs())

	result, err := s.RunNow(ctx, scheduler.JobExpireVouchers, "test")
	require.NoError(t, err)
	assert.Equal(t, 4, result["expired"])
	assert.Equal(t, now, vouchers.expireAt)

	result, err = s.RunNow(ctx, scheduler.JobReconcileTransactions, "test")
	require.NoError(t, err)
	assert.Equal(t, 2, result["completed"])
	assert.Equal(t, 1, result["still_pending"])
	assert.Equal(t, now.Add(-cfg.ReconcileAfter), txns.olderThan)

	result, err = s.RunNow(ctx, scheduler.JobResumeRedemptions, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, result["failed"])
	assert.Equal(t, now.Add(-cfg.ResumeAfter), vouchers.resumeFrom)

	result, err = s.RunNow(ctx, scheduler.JobFlushOutbox, "test")
	require.NoError(t, err)
	assert.Equal(t, 4, result["published"])
	assert.Equal(t, cfg.OutboxBatch, outbox.batch)

	result, err = s.RunNow(ctx, scheduler.JobRunSettlements, "test")
	require.NoError(t, err)
	assert.Equal(t, scheduler.Result{"created": 1, "skipped": 1, "failed": 0}, result)
	assert.Equal(t, now, settlements.periodEnd)
	assert.Equal(t, cfg.SettlementCadence, settlements.cadence)
}
