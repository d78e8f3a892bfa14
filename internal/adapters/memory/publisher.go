package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
)

// Publisher records published events in memory. It implements
// ports.EventPublisher for local runs and tests.
type Publisher struct {
	mu     sync.Mutex
	events []domain.DomainEvent
	failFn func(domain.DomainEvent) error
	closed bool
}

// NewPublisher creates an empty recording publisher
func NewPublisher() *Publisher {
	return &Publisher{}
}

// FailWith makes Publish return fn's result before recording. A nil fn clears it.
func (p *Publisher) FailWith(fn func(domain.DomainEvent) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failFn = fn
}

func (p *Publisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFn != nil {
		if err := p.failFn(event); err != nil {
			return err
		}
	}
	p.events = append(p.events, event)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Events returns a copy of the published events in publish order
func (p *Publisher) Events() []domain.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.DomainEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Actions returns the actions published for entityID, in order
func (p *Publisher) Actions(entityID uuid.UUID) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.EntityID == entityID {
			out = append(out, e.Action)
		}
	}
	return out
}
