package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/kevin07696/voucher-ledger/pkg/encoding"
	kafkago "github.com/segmentio/kafka-go"
)

// Config holds producer settings
type Config struct {
	Topic        string
	Brokers      []string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher implements ports.EventPublisher on a Kafka topic. Messages are
// keyed by entity ID so events for one entity stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	logger ports.Logger
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a publisher writing to cfg.Topic
func NewPublisher(cfg Config, logger ports.Logger) *Publisher {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(writer, logger)
}

func newPublisher(writer messageWriter, logger ports.Logger) *Publisher {
	return &Publisher{writer: writer, logger: logger}
}

// Publish writes one event. The message value is the JSON event.
func (p *Publisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	payload, err := encoding.EncodeJSON(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.EntityID.String()),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafkago.Header{
			{Key: "event-id", Value: []byte(event.ID.String())},
			{Key: "entity-type", Value: []byte(event.EntityType)},
			{Key: "action", Value: []byte(event.Action)},
			{Key: "dedup-key", Value: []byte(event.DedupKey())},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to produce event",
			ports.Stringer("event_id", event.ID),
			ports.String("action", event.Action),
			ports.Err(err),
		)
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
