package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// TemplateRepository implements ports.TemplateRepository
type TemplateRepository struct {
	store *Store
}

// NewTemplateRepository creates a template repository backed by store
func NewTemplateRepository(store *Store) *TemplateRepository {
	return &TemplateRepository{store: store}
}

func (r *TemplateRepository) Create(ctx context.Context, tx ports.DBTX, tpl *domain.VoucherTemplate) error {
	return r.store.view(ctx, func(t *tables) error {
		if _, ok := t.templates[tpl.ID]; ok {
			return alreadyExists("voucher template", tpl.ID)
		}
		t.templates[tpl.ID] = *tpl
		return nil
	})
}

func (r *TemplateRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.VoucherTemplate, error) {
	var out *domain.VoucherTemplate
	err := r.store.view(ctx, func(t *tables) error {
		tpl, ok := t.templates[id]
		if !ok || tpl.DeletedAt != nil {
			return notFound(domain.ErrorCodeTemplateNotFound, "voucher template", id)
		}
		out = &tpl
		return nil
	})
	return out, err
}

func (r *TemplateRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.VoucherTemplate, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *TemplateRepository) Update(ctx context.Context, tx ports.DBTX, tpl *domain.VoucherTemplate) error {
	return r.store.view(ctx, func(t *tables) error {
		if _, ok := t.templates[tpl.ID]; !ok {
			return notFound(domain.ErrorCodeTemplateNotFound, "voucher template", tpl.ID)
		}
		t.templates[tpl.ID] = *tpl
		return nil
	})
}

// VoucherRepository implements ports.VoucherRepository
type VoucherRepository struct {
	store *Store
}

// NewVoucherRepository creates a voucher repository backed by store
func NewVoucherRepository(store *Store) *VoucherRepository {
	return &VoucherRepository{store: store}
}

func (r *VoucherRepository) Create(ctx context.Context, tx ports.DBTX, v *domain.Voucher) error {
	return r.store.view(ctx, func(t *tables) error {
		if _, ok := t.voucherCodes[v.Code]; ok {
			return alreadyExists("voucher code", v.Code)
		}
		if _, ok := t.vouchers[v.ID]; ok {
			return alreadyExists("voucher", v.ID)
		}
		v.Version = 1
		t.vouchers[v.ID] = *v
		t.voucherCodes[v.Code] = v.ID
		return nil
	})
}

func (r *VoucherRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Voucher, error) {
	var out *domain.Voucher
	err := r.store.view(ctx, func(t *tables) error {
		v, ok := t.vouchers[id]
		if !ok || v.DeletedAt != nil {
			return notFound(domain.ErrorCodeVoucherNotFound, "voucher", id)
		}
		out = &v
		return nil
	})
	return out, err
}

func (r *VoucherRepository) GetByCode(ctx context.Context, db ports.DBTX, code string) (*domain.Voucher, error) {
	var out *domain.Voucher
	err := r.store.view(ctx, func(t *tables) error {
		id, ok := t.voucherCodes[code]
		if !ok {
			return notFound(domain.ErrorCodeVoucherNotFound, "voucher", code)
		}
		v := t.vouchers[id]
		out = &v
		return nil
	})
	return out, err
}

func (r *VoucherRepository) GetByCodeForUpdate(ctx context.Context, tx ports.DBTX, code string) (*domain.Voucher, error) {
	return r.GetByCode(ctx, tx, code)
}

func (r *VoucherRepository) Update(ctx context.Context, tx ports.DBTX, v *domain.Voucher) error {
	return r.store.view(ctx, func(t *tables) error {
		stored, ok := t.vouchers[v.ID]
		if !ok || stored.DeletedAt != nil {
			return notFound(domain.ErrorCodeVoucherNotFound, "voucher", v.ID)
		}
		if stored.Version != v.Version {
			return versionConflict("voucher", v.ID)
		}
		v.Version++
		t.vouchers[v.ID] = *v
		if v.DeletedAt != nil {
			delete(t.voucherCodes, v.Code)
		}
		return nil
	})
}

func (r *VoucherRepository) CountByTemplateAndOwner(ctx context.Context, db ports.DBTX, templateID, ownerID uuid.UUID) (int, error) {
	count := 0
	err := r.store.view(ctx, func(t *tables) error {
		for _, v := range t.vouchers {
			if v.DeletedAt == nil && v.TemplateID == templateID && v.OwnerUserID != nil && *v.OwnerUserID == ownerID {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *VoucherRepository) ListExpirable(ctx context.Context, db ports.DBTX, now time.Time, limit int) ([]*domain.Voucher, error) {
	var out []*domain.Voucher
	err := r.store.view(ctx, func(t *tables) error {
		for _, v := range t.vouchers {
			if v.DeletedAt != nil || v.IsTerminal() || !v.IsExpiredAt(now) {
				continue
			}
			v := v
			out = append(out, &v)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// RedemptionRepository implements ports.RedemptionRepository
type RedemptionRepository struct {
	store *Store
}

// NewRedemptionRepository creates a redemption repository backed by store
func NewRedemptionRepository(store *Store) *RedemptionRepository {
	return &RedemptionRepository{store: store}
}

func (r *RedemptionRepository) Create(ctx context.Context, tx ports.DBTX, red *domain.Redemption) error {
	return r.store.view(ctx, func(t *tables) error {
		if red.IdempotencyKey != nil {
			if _, ok := t.redemptionKeys[*red.IdempotencyKey]; ok {
				return alreadyExists("redemption idempotency key", *red.IdempotencyKey)
			}
			t.redemptionKeys[*red.IdempotencyKey] = red.ID
		}
		t.redemptions[red.ID] = *red
		return nil
	})
}

func (r *RedemptionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Redemption, error) {
	var out *domain.Redemption
	err := r.store.view(ctx, func(t *tables) error {
		red, ok := t.redemptions[id]
		if !ok {
			return notFound(domain.ErrorCodeRedemptionNotFound, "redemption", id)
		}
		out = &red
		return nil
	})
	return out, err
}

func (r *RedemptionRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.Redemption, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *RedemptionRepository) GetByIdempotencyKey(ctx context.Context, db ports.DBTX, key string) (*domain.Redemption, error) {
	var out *domain.Redemption
	err := r.store.view(ctx, func(t *tables) error {
		id, ok := t.redemptionKeys[key]
		if !ok {
			return notFound(domain.ErrorCodeRedemptionNotFound, "redemption", key)
		}
		red := t.redemptions[id]
		out = &red
		return nil
	})
	return out, err
}

func (r *RedemptionRepository) Update(ctx context.Context, tx ports.DBTX, red *domain.Redemption) error {
	return r.store.view(ctx, func(t *tables) error {
		if _, ok := t.redemptions[red.ID]; !ok {
			return notFound(domain.ErrorCodeRedemptionNotFound, "redemption", red.ID)
		}
		t.redemptions[red.ID] = *red
		return nil
	})
}

func (r *RedemptionRepository) ListPending(ctx context.Context, db ports.DBTX, olderThan time.Time, limit int) ([]*domain.Redemption, error) {
	var out []*domain.Redemption
	err := r.store.view(ctx, func(t *tables) error {
		for _, red := range t.redemptions {
			if red.Status == domain.RedemptionStatusPending && red.UpdatedAt.Before(olderThan) {
				red := red
				out = append(out, &red)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}
