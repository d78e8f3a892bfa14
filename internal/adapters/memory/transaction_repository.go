package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// TransactionRepository implements ports.TransactionRepository
type TransactionRepository struct {
	store *Store
}

// NewTransactionRepository creates a transaction repository backed by store
func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

// copyTransaction detaches the item slice so callers never share rows with the store
func copyTransaction(txn domain.Transaction) *domain.Transaction {
	if txn.Items != nil {
		items := make([]*domain.TransactionItem, len(txn.Items))
		for i, item := range txn.Items {
			it := *item
			items[i] = &it
		}
		txn.Items = items
	}
	if txn.ExternalRef != nil {
		ref := *txn.ExternalRef
		txn.ExternalRef = &ref
	}
	return &txn
}

func (r *TransactionRepository) Create(ctx context.Context, tx ports.DBTX, txn *domain.Transaction) error {
	return r.store.view(ctx, func(t *tables) error {
		if _, ok := t.transactions[txn.ID]; ok {
			return alreadyExists("transaction", txn.ID)
		}
		if ref := txn.GetExternalRef(); ref != "" {
			if _, ok := t.externalRefs[ref]; ok {
				return alreadyExists("transaction external reference", ref)
			}
			t.externalRefs[ref] = txn.ID
		}
		for _, item := range txn.Items {
			if item.ID == uuid.Nil {
				item.ID = uuid.New()
			}
			item.TransactionID = txn.ID
			item.CreatedAt = txn.CreatedAt
		}
		t.transactions[txn.ID] = *copyTransaction(*txn)
		return nil
	})
}

func (r *TransactionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.store.view(ctx, func(t *tables) error {
		txn, ok := t.transactions[id]
		if !ok || txn.DeletedAt != nil {
			return notFound(domain.ErrorCodeTxnNotFound, "transaction", id)
		}
		out = copyTransaction(txn)
		return nil
	})
	return out, err
}

func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.Transaction, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *TransactionRepository) GetByExternalRef(ctx context.Context, db ports.DBTX, externalRef string) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.store.view(ctx, func(t *tables) error {
		id, ok := t.externalRefs[externalRef]
		if !ok {
			return notFound(domain.ErrorCodeTxnNotFound, "transaction", externalRef)
		}
		out = copyTransaction(t.transactions[id])
		return nil
	})
	return out, err
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status domain.TransactionStatus, updatedAt time.Time) error {
	return r.store.view(ctx, func(t *tables) error {
		txn, ok := t.transactions[id]
		if !ok || txn.DeletedAt != nil {
			return notFound(domain.ErrorCodeTxnNotFound, "transaction", id)
		}
		txn.Status = status
		txn.UpdatedAt = updatedAt
		t.transactions[id] = txn
		return nil
	})
}

func (r *TransactionRepository) ListStalePending(ctx context.Context, db ports.DBTX, olderThan time.Time, limit int) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	err := r.store.view(ctx, func(t *tables) error {
		for _, txn := range t.transactions {
			if txn.DeletedAt == nil && txn.Status == domain.TransactionStatusPending && txn.CreatedAt.Before(olderThan) {
				out = append(out, copyTransaction(txn))
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

func inWindow(at, start, end time.Time) bool {
	return !at.Before(start) && at.Before(end)
}

func (r *TransactionRepository) ListCompletedForSettlement(ctx context.Context, db ports.DBTX, merchantID uuid.UUID, start, end time.Time) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	err := r.store.view(ctx, func(t *tables) error {
		for _, txn := range t.transactions {
			if txn.DeletedAt != nil || txn.Status != domain.TransactionStatusCompleted {
				continue
			}
			if txn.MerchantID == nil || *txn.MerchantID != merchantID || !inWindow(txn.TransactionDate, start, end) {
				continue
			}
			out = append(out, copyTransaction(txn))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate.Before(out[j].TransactionDate) })
	return out, err
}

func (r *TransactionRepository) ListMerchantsWithCompleted(ctx context.Context, db ports.DBTX, start, end time.Time) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	err := r.store.view(ctx, func(t *tables) error {
		for _, txn := range t.transactions {
			if txn.DeletedAt != nil || txn.Status != domain.TransactionStatusCompleted || txn.MerchantID == nil {
				continue
			}
			if !inWindow(txn.TransactionDate, start, end) || seen[*txn.MerchantID] {
				continue
			}
			seen[*txn.MerchantID] = true
			out = append(out, *txn.MerchantID)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, err
}
