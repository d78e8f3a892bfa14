package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// AccountRepository implements ports.AccountRepository
type AccountRepository struct {
	store *Store
}

// NewAccountRepository creates an account repository backed by store
func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

func (r *AccountRepository) Create(ctx context.Context, tx ports.DBTX, acct *domain.PaymentAccount) error {
	return r.store.view(ctx, func(t *tables) error {
		if _, ok := t.accounts[acct.ID]; ok {
			return alreadyExists("payment account", acct.ID)
		}
		acct.Version = 1
		t.accounts[acct.ID] = *acct
		return nil
	})
}

func (r *AccountRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.PaymentAccount, error) {
	var out *domain.PaymentAccount
	err := r.store.view(ctx, func(t *tables) error {
		acct, ok := t.accounts[id]
		if !ok || acct.DeletedAt != nil {
			return notFound(domain.ErrorCodeAccountNotFound, "payment account", id)
		}
		out = &acct
		return nil
	})
	return out, err
}

func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.PaymentAccount, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, tx ports.DBTX, acct *domain.PaymentAccount) error {
	return r.store.view(ctx, func(t *tables) error {
		stored, ok := t.accounts[acct.ID]
		if !ok || stored.DeletedAt != nil {
			return notFound(domain.ErrorCodeAccountNotFound, "payment account", acct.ID)
		}
		if stored.Version != acct.Version {
			return versionConflict("payment account", acct.ID)
		}
		acct.Version++
		t.accounts[acct.ID] = *acct
		return nil
	})
}

func (r *AccountRepository) ListByUser(ctx context.Context, db ports.DBTX, userID uuid.UUID) ([]*domain.PaymentAccount, error) {
	var out []*domain.PaymentAccount
	err := r.store.view(ctx, func(t *tables) error {
		for _, acct := range t.accounts {
			if acct.UserID == userID && acct.DeletedAt == nil {
				acct := acct
				out = append(out, &acct)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

// LedgerEntryRepository implements ports.LedgerEntryRepository
type LedgerEntryRepository struct {
	store *Store
}

// NewLedgerEntryRepository creates a ledger entry repository backed by store
func NewLedgerEntryRepository(store *Store) *LedgerEntryRepository {
	return &LedgerEntryRepository{store: store}
}

func entryKey(accountID uuid.UUID, key string) string {
	return accountID.String() + "|" + key
}

func (r *LedgerEntryRepository) Create(ctx context.Context, tx ports.DBTX, entry *domain.LedgerEntry) error {
	return r.store.view(ctx, func(t *tables) error {
		if entry.IdempotencyKey != "" {
			k := entryKey(entry.AccountID, entry.IdempotencyKey)
			if _, ok := t.entryKeys[k]; ok {
				return alreadyExists("ledger entry", entry.IdempotencyKey)
			}
			t.entryKeys[k] = entry.ID
		}
		t.entries[entry.ID] = *entry
		return nil
	})
}

func (r *LedgerEntryRepository) GetByIdempotencyKey(ctx context.Context, db ports.DBTX, accountID uuid.UUID, key string) (*domain.LedgerEntry, error) {
	var out *domain.LedgerEntry
	err := r.store.view(ctx, func(t *tables) error {
		id, ok := t.entryKeys[entryKey(accountID, key)]
		if !ok {
			return notFound(domain.ErrorCodeLedgerEntryNotFound, "ledger entry", key)
		}
		e := t.entries[id]
		out = &e
		return nil
	})
	return out, err
}

func (r *LedgerEntryRepository) ListByAccount(ctx context.Context, db ports.DBTX, accountID uuid.UUID, limit int) ([]*domain.LedgerEntry, error) {
	var out []*domain.LedgerEntry
	err := r.store.view(ctx, func(t *tables) error {
		for _, e := range t.entries {
			if e.AccountID == accountID {
				e := e
				out = append(out, &e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}
