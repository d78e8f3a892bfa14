package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/pkg/logging"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingWriter struct {
	err    error
	msgs   []kafkago.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := newPublisher(w, logging.NewZapLogger(zaptest.NewLogger(t)))

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	event := domain.NewDomainEvent(domain.EntityTypeVoucher, uuid.New(), domain.ActionVoucherRedeemed, now)
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, event.EntityID.String(), string(msg.Key))
	assert.Equal(t, "voucher-redeemed", header(msg, "action"))
	assert.Equal(t, event.DedupKey(), header(msg, "dedup-key"))

	var decoded domain.DomainEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.Action, decoded.Action)
	assert.True(t, event.Timestamp.Equal(decoded.Timestamp))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisher_PublishError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := newPublisher(w, logging.NewZapLogger(zaptest.NewLogger(t)))

	event := domain.NewDomainEvent(domain.EntityTypeSettlement, uuid.New(), domain.ActionSettlementCompleted, time.Now().UTC())
	err := p.Publish(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}
