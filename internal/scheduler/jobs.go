package scheduler

import (
	"context"

	"github.com/kevin07696/voucher-ledger/internal/config"
	"github.com/kevin07696/voucher-ledger/internal/services/events"
	svcports "github.com/kevin07696/voucher-ledger/internal/services/ports"
	"github.com/kevin07696/voucher-ledger/pkg/timeutil"
)

// Job names, also used as cron endpoint suffixes
const (
	JobExpireVouchers        = "expire-vouchers"
	JobReconcileTransactions = "reconcile-transactions"
	JobResumeRedemptions     = "resume-redemptions"
	JobFlushOutbox           = "flush-outbox"
	JobRunSettlements        = "run-settlements"
)

const maintenanceBatch = 500

// OutboxFlusher publishes committed outbox entries
type OutboxFlusher interface {
	Flush(ctx context.Context, batch int) (*events.FlushReport, error)
}

// Tasks binds the background work of each service to job definitions
type Tasks struct {
	Vouchers     svcports.VoucherService
	Transactions svcports.TransactionService
	Settlements  svcports.SettlementService
	Outbox       OutboxFlusher
	Clock        timeutil.Clock
	Config       config.JobsConfig
}

// Jobs returns the job set, intervals taken from config
func (t Tasks) Jobs() []Job {
	return []Job{
		{Name: JobExpireVouchers, Interval: t.Config.ExpireInterval, Run: t.ExpireVouchers},
		{Name: JobReconcileTransactions, Interval: t.Config.ReconcileInterval, Run: t.ReconcileTransactions},
		{Name: JobResumeRedemptions, Interval: t.Config.ResumeInterval, Run: t.ResumeRedemptions},
		{Name: JobFlushOutbox, Interval: t.Config.OutboxInterval, Run: t.FlushOutbox},
		{Name: JobRunSettlements, Interval: t.Config.SettlementInterval, Run: t.RunSettlements},
	}
}

func (t Tasks) now() timeutil.Clock {
	if t.Clock == nil {
		return timeutil.Now
	}
	return t.Clock
}

// ExpireVouchers moves ACTIVE vouchers past their expiry to EXPIRED
func (t Tasks) ExpireVouchers(ctx context.Context) (Result, error) {
	n, err := t.Vouchers.ExpireDue(ctx, t.now()(), maintenanceBatch)
	return Result{"expired": n}, err
}

// ReconcileTransactions re-queries the gateway for stale PENDING transactions
func (t Tasks) ReconcileTransactions(ctx context.Context) (Result, error) {
	report, err := t.Transactions.ReconcileStale(ctx, t.now()().Add(-t.Config.ReconcileAfter), maintenanceBatch)
	if report == nil {
		return nil, err
	}
	return Result{
		"scanned":       report.Scanned,
		"completed":     report.Completed,
		"failed":        report.Failed,
		"cancelled":     report.Cancelled,
		"refunded":      report.Refunded,
		"still_pending": report.StillPending,
		"skipped":       report.Skipped,
	}, err
}

// ResumeRedemptions drives interrupted redemption sagas forward
func (t Tasks) ResumeRedemptions(ctx context.Context) (Result, error) {
	report, err := t.Vouchers.ResumePendingRedemptions(ctx, t.now()().Add(-t.Config.ResumeAfter), maintenanceBatch)
	if report == nil {
		return nil, err
	}
	return Result{
		"scanned":   report.Scanned,
		"completed": report.Completed,
		"failed":    report.Failed,
	}, err
}

// FlushOutbox publishes due outbox entries
func (t Tasks) FlushOutbox(ctx context.Context) (Result, error) {
	report, err := t.Outbox.Flush(ctx, t.Config.OutboxBatch)
	if report == nil {
		return nil, err
	}
	return Result{
		"due":       report.Due,
		"published": report.Published,
		"failed":    report.Failed,
	}, err
}

// RunSettlements settles the previous cadence window for every merchant with
// completed transactions in it
func (t Tasks) RunSettlements(ctx context.Context) (Result, error) {
	report, err := t.Settlements.RunPeriodicSettlements(ctx, nil, t.now()(), t.Config.SettlementCadence)
	if report == nil {
		return nil, err
	}
	return Result{
		"created": len(report.Created),
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}, err
}
