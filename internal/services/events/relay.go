package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/kevin07696/voucher-ledger/pkg/observability"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"github.com/kevin07696/voucher-ledger/pkg/timeutil"
)

// DefaultBatchSize bounds how many entries one Flush handles
const DefaultBatchSize = 100

// FlushReport summarizes one relay pass
type FlushReport struct {
	Due       int
	Published int
	Failed    int
}

// Relay moves committed outbox entries to the event publisher. Delivery is
// at-least-once: an entry is marked published only after Publish returns.
type Relay struct {
	db        ports.TransactionManager
	outbox    ports.OutboxRepository
	publisher ports.EventPublisher
	backoff   resilience.BackoffStrategy
	timeouts  *resilience.TimeoutConfig
	logger    ports.Logger
	now       timeutil.Clock
}

// RelayOption configures a Relay
type RelayOption func(*Relay)

// WithClock overrides the relay clock
func WithClock(clock timeutil.Clock) RelayOption {
	return func(r *Relay) { r.now = clock }
}

// WithBackoff overrides the retry schedule of failed publications
func WithBackoff(b resilience.BackoffStrategy) RelayOption {
	return func(r *Relay) { r.backoff = b }
}

// NewRelay creates a new outbox relay
func NewRelay(
	db ports.TransactionManager,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	timeouts *resilience.TimeoutConfig,
	logger ports.Logger,
	opts ...RelayOption,
) *Relay {
	r := &Relay{
		db:        db,
		outbox:    outbox,
		publisher: publisher,
		backoff:   resilience.OutboxBackoff(),
		timeouts:  timeouts,
		logger:    logger,
		now:       timeutil.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Flush publishes up to batch due entries in enqueue order. Failed entries
// are rescheduled with exponential backoff; a publisher outage never
// surfaces to the code that committed the state change.
func (r *Relay) Flush(ctx context.Context, batch int) (*FlushReport, error) {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	report := &FlushReport{}

	err := r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		*report = FlushReport{}

		due, err := r.outbox.ListDue(ctx, tx, r.now(), batch)
		if err != nil {
			return fmt.Errorf("list due events: %w", err)
		}
		report.Due = len(due)
		observability.SetOutboxBatchSize(len(due))

		for _, entry := range due {
			if err := r.publishOne(ctx, tx, entry); err != nil {
				return err
			}
			if entry.IsPublished() {
				report.Published++
			} else {
				report.Failed++
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Outbox flush failed", ports.Err(err))
		return nil, err
	}

	if report.Due > 0 {
		r.logger.Info("Outbox flushed",
			ports.Int("due", report.Due),
			ports.Int("published", report.Published),
			ports.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// publishOne publishes entry and records the outcome on it. Only storage
// errors are returned.
func (r *Relay) publishOne(ctx context.Context, tx ports.DBTX, entry *domain.OutboxEntry) error {
	pubCtx, cancel := r.timeouts.PublishContext(ctx)
	start := time.Now()
	pubErr := r.publisher.Publish(pubCtx, entry.Event)
	cancel()
	duration := time.Since(start).Seconds()

	now := r.now()
	if pubErr == nil {
		observability.RecordOutboxPublish("published", duration)
		if err := r.outbox.MarkPublished(ctx, tx, entry.Event.ID, now); err != nil {
			return fmt.Errorf("mark %s published: %w", entry.Event.ID, err)
		}
		entry.PublishedAt = &now
		return nil
	}

	observability.RecordOutboxPublish("failed", duration)
	if ctx.Err() != nil {
		// The whole flush is being cancelled; leave the entry untouched
		return ctx.Err()
	}

	attempts := entry.Attempts + 1
	next := now.Add(r.backoff.NextDelay(entry.Attempts))
	r.logger.Warn("Event publication failed, rescheduling",
		ports.Stringer("event_id", entry.Event.ID),
		ports.String("action", entry.Event.Action),
		ports.Int("attempts", attempts),
		ports.Any("next_attempt_at", next),
		ports.Err(pubErr),
	)
	if err := r.outbox.MarkFailed(ctx, tx, entry.Event.ID, attempts, next, pubErr.Error()); err != nil {
		return fmt.Errorf("mark %s failed: %w", entry.Event.ID, err)
	}
	entry.Attempts = attempts
	entry.NextAttemptAt = next
	entry.LastError = pubErr.Error()
	return nil
}

// Run flushes every interval until ctx is done
func (r *Relay) Run(ctx context.Context, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx, batch); err != nil && ctx.Err() == nil {
				r.logger.Warn("Outbox relay pass failed", ports.Err(err))
			}
		}
	}
}
