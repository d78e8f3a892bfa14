package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/voucher-ledger/internal/adapters/memory"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/services/events"
	"github.com/kevin07696/voucher-ledger/pkg/logging"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type relayFixture struct {
	store     *memory.Store
	outbox    *memory.OutboxRepository
	publisher *memory.Publisher
	notifier  *events.Notifier
	relay     *events.Relay
	now       time.Time
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	f := &relayFixture{
		store:     memory.NewStore(),
		publisher: memory.NewPublisher(),
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.outbox = memory.NewOutboxRepository(f.store)
	f.notifier = events.NewNotifier(f.outbox)
	f.relay = events.NewRelay(f.store, f.outbox, f.publisher, resilience.TestTimeoutConfig(),
		logging.NewZapLogger(zaptest.NewLogger(t)),
		events.WithClock(func() time.Time { return f.now }),
		events.WithBackoff(&resilience.FixedBackoff{Delay: time.Minute}),
	)
	return f
}

func (f *relayFixture) emit(t *testing.T, evts ...domain.DomainEvent) {
	t.Helper()
	err := f.store.WithTransaction(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		return f.notifier.Emit(ctx, tx, evts...)
	})
	require.NoError(t, err)
}

func TestNotifier_RolledBackEventsAreNeverPublished(t *testing.T) {
	f := newRelayFixture(t)
	boom := errors.New("state change failed")

	err := f.store.WithTransaction(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		ev := domain.NewDomainEvent(domain.EntityTypeVoucher, uuid.New(), domain.ActionVoucherIssued, f.now)
		require.NoError(t, f.notifier.Emit(ctx, tx, ev))
		return boom
	})
	require.ErrorIs(t, err, boom)

	report, err := f.relay.Flush(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
	assert.Empty(t, f.publisher.Events())
}

func TestRelay_FlushPublishesInOrder(t *testing.T) {
	f := newRelayFixture(t)
	voucherID := uuid.New()
	f.emit(t,
		domain.NewDomainEvent(domain.EntityTypeVoucher, voucherID, domain.ActionVoucherIssued, f.now),
		domain.NewDomainEvent(domain.EntityTypeVoucher, voucherID, domain.ActionVoucherRedeemed, f.now.Add(time.Second)),
	)

	report, err := f.relay.Flush(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Published)
	assert.Equal(t, []string{"voucher-issued", "voucher-redeemed"}, f.publisher.Actions(voucherID))
	assert.Empty(t, f.outbox.Pending(context.Background()))

	// A second pass finds nothing to do
	report, err = f.relay.Flush(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
	assert.Len(t, f.publisher.Events(), 2)
}

func TestRelay_PublishesEventsStampedAheadOfRelayClock(t *testing.T) {
	f := newRelayFixture(t)
	voucherID := uuid.New()
	f.emit(t, domain.NewDomainEvent(domain.EntityTypeVoucher, voucherID, domain.ActionVoucherCancelled, f.now.Add(time.Hour)))

	report, err := f.relay.Flush(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published, "writer clock skew must not defer the first attempt")
	assert.Equal(t, []string{"voucher-cancelled"}, f.publisher.Actions(voucherID))
}

func TestRelay_FailedPublicationIsRescheduled(t *testing.T) {
	f := newRelayFixture(t)
	settlementID := uuid.New()
	f.emit(t, domain.NewDomainEvent(domain.EntityTypeSettlement, settlementID, domain.ActionSettlementCompleted, f.now))

	f.publisher.FailWith(func(domain.DomainEvent) error { return domain.ErrUpstreamTimeout })
	report, err := f.relay.Flush(context.Background(), 10)
	require.NoError(t, err, "publisher failures do not fail the flush")
	assert.Equal(t, 1, report.Failed)

	pending := f.outbox.Pending(context.Background())
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, f.now.Add(time.Minute), pending[0].NextAttemptAt)
	assert.Contains(t, pending[0].LastError, "upstream timed out")

	// Not yet due
	f.publisher.FailWith(nil)
	report, err = f.relay.Flush(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)

	f.now = f.now.Add(time.Minute)
	report, err = f.relay.Flush(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, []string{"settlement-completed"}, f.publisher.Actions(settlementID))
}

func TestRelay_BatchLimit(t *testing.T) {
	f := newRelayFixture(t)
	for i := 0; i < 5; i++ {
		f.emit(t, domain.NewDomainEvent(domain.EntityTypeTransaction, uuid.New(), domain.ActionTransactionRecorded, f.now))
	}

	report, err := f.relay.Flush(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Published)
	assert.Len(t, f.outbox.Pending(context.Background()), 3)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	f := newRelayFixture(t)
	f.emit(t, domain.NewDomainEvent(domain.EntityTypeVoucher, uuid.New(), domain.ActionVoucherCancelled, f.now))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.relay.Run(ctx, 10*time.Millisecond, 10)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(f.publisher.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}
