package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	// Voucher lifecycle metrics
	voucherOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voucher_operations_total",
		Help: "Total voucher lifecycle operations",
	}, []string{
		"operation", // issue, redeem, cancel, gift, expire
		"outcome",   // success or lower-cased error code
	})

	voucherRedeemedValue = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voucher_redeemed_value_total",
		Help: "Total voucher value consumed by redemptions",
	}, []string{
		"currency",
	})

	redemptionSagaDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "redemption_saga_duration_seconds",
		Help: "Time to drive a redemption saga through all steps",
		// Buckets: 5ms to 20s (the saga timeout)
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{
		"outcome",
	})

	// Ledger metrics
	ledgerMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_mutations_total",
		Help: "Total account balance mutations",
	}, []string{
		"kind",    // credit, debit, transfer
		"outcome", // success, replayed, or lower-cased error code
	})

	// Transaction recorder metrics
	transactionsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_recorded_total",
		Help: "Total transactions recorded",
	}, []string{
		"type",
		"status",
	})

	transactionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transaction_transitions_total",
		Help: "Total transaction status transitions",
	}, []string{
		"status",
	})

	reconciliationOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transaction_reconciliation_outcomes_total",
		Help: "Outcomes of the stale PENDING reconciliation sweep",
	}, []string{
		"outcome", // completed, failed, cancelled, refunded, still_pending, skipped
	})

	// Settlement metrics
	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Total settlement lifecycle events",
	}, []string{
		"status", // pending, completed, failed, cancelled, skipped
	})

	settlementNetPayout = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_net_payout_total",
		Help: "Total net payout amount of created settlements",
	}, []string{
		"currency",
	})

	// Event outbox metrics
	outboxPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_total",
		Help: "Total outbox publication attempts",
	}, []string{
		"outcome", // published, failed
	})

	outboxPublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_publish_duration_seconds",
		Help:    "Time to publish one outbox entry",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	outboxBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_last_batch_size",
		Help: "Number of due entries picked up by the last relay flush",
	})

	// Read-through cache metrics
	// Note: cache label is bounded by the number of cached aggregates (voucher, account)
	readCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "read_cache_lookups_total",
		Help: "Read-through cache lookups",
	}, []string{
		"cache",
		"result", // hit, miss, error
	})

	// Scheduled job metrics
	jobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "job_runs_total",
		Help: "Scheduled job runs by trigger and outcome",
	}, []string{
		"job",
		"trigger", // scheduler, http
		"outcome",
	})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Scheduled job run duration",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})
)

func amountFloat(amount decimal.Decimal) float64 {
	f, _ := amount.Float64()
	return f
}

// RecordVoucherOperation records a voucher lifecycle operation
func RecordVoucherOperation(operation, outcome string) {
	voucherOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordVoucherRedeemed records consumed voucher value.
// Revenue-grade sums come from settlements; this is a rate signal only.
func RecordVoucherRedeemed(amount decimal.Decimal, currency string) {
	voucherRedeemedValue.WithLabelValues(currency).Add(amountFloat(amount))
}

// RecordRedemptionSaga records end-to-end saga duration
func RecordRedemptionSaga(outcome string, duration float64) {
	redemptionSagaDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordLedgerMutation records one credit, debit or transfer
func RecordLedgerMutation(kind, outcome string) {
	ledgerMutationsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordTransaction records a newly created transaction
func RecordTransaction(txnType, status string) {
	transactionsRecordedTotal.WithLabelValues(txnType, status).Inc()
}

// RecordTransactionTransition records a status change
func RecordTransactionTransition(status string) {
	transactionTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordReconciliation records one reconciled transaction
func RecordReconciliation(outcome string) {
	reconciliationOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordSettlement records a settlement lifecycle event
func RecordSettlement(status string) {
	settlementsTotal.WithLabelValues(status).Inc()
}

// RecordSettlementPayout records the net payout of a created settlement
func RecordSettlementPayout(amount decimal.Decimal, currency string) {
	settlementNetPayout.WithLabelValues(currency).Add(amountFloat(amount))
}

// RecordOutboxPublish records one relay publication attempt
func RecordOutboxPublish(outcome string, duration float64) {
	outboxPublishTotal.WithLabelValues(outcome).Inc()
	outboxPublishDuration.Observe(duration)
}

// SetOutboxBatchSize records how many entries the last flush picked up
func SetOutboxBatchSize(n int) {
	outboxBatchSize.Set(float64(n))
}

// RecordCacheLookup records a read-through cache lookup
func RecordCacheLookup(cache, result string) {
	readCacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordJobRun records one scheduled or triggered job run
func RecordJobRun(job, trigger, outcome string, duration float64) {
	jobRunsTotal.WithLabelValues(job, trigger, outcome).Inc()
	jobDuration.WithLabelValues(job).Observe(duration)
}
