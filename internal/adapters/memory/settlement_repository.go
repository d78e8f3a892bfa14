package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// SettlementRepository implements ports.SettlementRepository
type SettlementRepository struct {
	store *Store
}

// NewSettlementRepository creates a settlement repository backed by store
func NewSettlementRepository(store *Store) *SettlementRepository {
	return &SettlementRepository{store: store}
}

func (r *SettlementRepository) Create(ctx context.Context, tx ports.DBTX, s *domain.PaymentSettlement) error {
	return r.store.view(ctx, func(t *tables) error {
		if _, ok := t.settlements[s.ID]; ok {
			return alreadyExists("settlement", s.ID)
		}
		t.settlements[s.ID] = *s
		return nil
	})
}

func (r *SettlementRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.PaymentSettlement, error) {
	var out *domain.PaymentSettlement
	err := r.store.view(ctx, func(t *tables) error {
		s, ok := t.settlements[id]
		if !ok {
			return notFound(domain.ErrorCodeSettlementNotFound, "settlement", id)
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *SettlementRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.PaymentSettlement, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *SettlementRepository) Update(ctx context.Context, tx ports.DBTX, s *domain.PaymentSettlement) error {
	return r.store.view(ctx, func(t *tables) error {
		if _, ok := t.settlements[s.ID]; !ok {
			return notFound(domain.ErrorCodeSettlementNotFound, "settlement", s.ID)
		}
		t.settlements[s.ID] = *s
		return nil
	})
}

func (r *SettlementRepository) ListOverlapping(ctx context.Context, db ports.DBTX, merchantID uuid.UUID, start, end time.Time) ([]*domain.PaymentSettlement, error) {
	var out []*domain.PaymentSettlement
	err := r.store.view(ctx, func(t *tables) error {
		for _, s := range t.settlements {
			if s.MerchantID == merchantID && s.BlocksPeriod() && s.Overlaps(start, end) {
				s := s
				out = append(out, &s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, err
}

func (r *SettlementRepository) ListByMerchant(ctx context.Context, db ports.DBTX, merchantID uuid.UUID, limit int) ([]*domain.PaymentSettlement, error) {
	var out []*domain.PaymentSettlement
	err := r.store.view(ctx, func(t *tables) error {
		for _, s := range t.settlements {
			if s.MerchantID == merchantID {
				s := s
				out = append(out, &s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// LockMerchant is satisfied by the store lock every transaction already holds
func (r *SettlementRepository) LockMerchant(ctx context.Context, tx ports.DBTX, merchantID uuid.UUID) error {
	return nil
}
