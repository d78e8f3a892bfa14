package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/voucher-ledger/internal/converters"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, user_id, merchant_id, type, status, amount, fee_amount, currency, payment_method,
	external_ref, notes, transaction_date, created_at, updated_at, deleted_at`

// TransactionRepository implements ports.TransactionRepository
type TransactionRepository struct {
	executor
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db ports.DBPort) *TransactionRepository {
	return &TransactionRepository{executor{pool: db.GetDB()}}
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t           domain.Transaction
		merchant    pgtype.UUID
		amount, fee pgtype.Numeric
		externalRef pgtype.Text
		deletedAt   pgtype.Timestamptz
	)
	err := row.Scan(&t.ID, &t.UserID, &merchant, &t.Type, &t.Status, &amount, &fee, &t.Currency, &t.PaymentMethod,
		&externalRef, &t.Notes, &t.TransactionDate, &t.CreatedAt, &t.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeNumerics(map[*decimal.Decimal]pgtype.Numeric{&t.Amount: amount, &t.FeeAmount: fee}); err != nil {
		return nil, err
	}
	t.MerchantID = converters.FromNullableUUID(merchant)
	t.ExternalRef = converters.FromNullableText(externalRef)
	t.DeletedAt = converters.FromNullableTimestamptz(deletedAt)
	t.TransactionDate = t.TransactionDate.UTC()
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()
	return &t, nil
}

func scanTransactionItem(row rowScanner) (*domain.TransactionItem, error) {
	var (
		it                    domain.TransactionItem
		unit, discount, total pgtype.Numeric
	)
	err := row.Scan(&it.ID, &it.TransactionID, &it.ItemType, &it.ItemID, &it.Quantity, &unit, &discount, &total, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeNumerics(map[*decimal.Decimal]pgtype.Numeric{
		&it.UnitPrice:      unit,
		&it.DiscountAmount: discount,
		&it.TotalPrice:     total,
	}); err != nil {
		return nil, err
	}
	it.CreatedAt = it.CreatedAt.UTC()
	return &it, nil
}

// Create inserts the transaction and then its items
func (r *TransactionRepository) Create(ctx context.Context, tx ports.DBTX, t *domain.Transaction) error {
	q := r.on(tx)
	_, err := q.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.UserID, converters.ToNullableUUIDFromUUID(t.MerchantID), string(t.Type), string(t.Status),
		converters.ToNumeric(t.Amount), converters.ToNumeric(t.FeeAmount), t.Currency, t.PaymentMethod,
		converters.ToNullableText(t.ExternalRef), t.Notes, t.TransactionDate, t.CreatedAt, t.UpdatedAt,
		converters.ToNullableTimestamptz(t.DeletedAt))
	if err != nil {
		return mapError(err, "create transaction", domain.ErrorCodeTxnNotFound)
	}

	for _, item := range t.Items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.TransactionID = t.ID
		item.CreatedAt = t.CreatedAt
		_, err := q.Exec(ctx, `
			INSERT INTO transaction_items
				(id, transaction_id, item_type, item_id, quantity, unit_price, discount_amount, total_price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			item.ID, item.TransactionID, string(item.ItemType), item.ItemID, item.Quantity,
			converters.ToNumeric(item.UnitPrice), converters.ToNumeric(item.DiscountAmount),
			converters.ToNumeric(item.TotalPrice), item.CreatedAt)
		if err != nil {
			return mapError(err, "create transaction item", domain.ErrorCodeTxnNotFound)
		}
	}
	return nil
}

func (r *TransactionRepository) loadItems(ctx context.Context, db ports.DBTX, t *domain.Transaction) error {
	rows, err := db.Query(ctx, `
		SELECT id, transaction_id, item_type, item_id, quantity, unit_price, discount_amount, total_price, created_at
		FROM transaction_items WHERE transaction_id = $1 ORDER BY created_at, id`, t.ID)
	if err != nil {
		return mapError(err, "list transaction items", domain.ErrorCodeTxnNotFound)
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanTransactionItem(rows)
		if err != nil {
			return mapError(err, "scan transaction item", domain.ErrorCodeTxnNotFound)
		}
		t.Items = append(t.Items, it)
	}
	return mapError(rows.Err(), "list transaction items", domain.ErrorCodeTxnNotFound)
}

func (r *TransactionRepository) getOne(ctx context.Context, db ports.DBTX, op, query string, arg interface{}) (*domain.Transaction, error) {
	q := r.on(db)
	t, err := scanTransaction(q.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapError(err, op, domain.ErrorCodeTxnNotFound)
	}
	if err := r.loadItems(ctx, q, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Transaction, error) {
	return r.getOne(ctx, db, "get transaction",
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.Transaction, error) {
	return r.getOne(ctx, tx, "lock transaction",
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
}

func (r *TransactionRepository) GetByExternalRef(ctx context.Context, db ports.DBTX, externalRef string) (*domain.Transaction, error) {
	return r.getOne(ctx, db, "get transaction by external ref",
		`SELECT `+transactionColumns+` FROM transactions WHERE external_ref = $1`, externalRef)
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status domain.TransactionStatus, updatedAt time.Time) error {
	tag, err := r.on(tx).Exec(ctx, `
		UPDATE transactions SET status = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL`, id, string(status), updatedAt)
	if err != nil {
		return mapError(err, "update transaction status", domain.ErrorCodeTxnNotFound)
	}
	if tag.RowsAffected() == 0 {
		return domain.Errorf(domain.ErrorCodeTxnNotFound, "transaction %s not found", id)
	}
	return nil
}

// listTransactions runs a headers-only query; items are not loaded
func (r *TransactionRepository) listTransactions(ctx context.Context, db ports.DBTX, op, query string, args ...interface{}) ([]*domain.Transaction, error) {
	rows, err := r.on(db).Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, op, domain.ErrorCodeTxnNotFound)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Transaction, error) {
		return scanTransaction(row)
	})
	return out, mapError(err, op, domain.ErrorCodeTxnNotFound)
}

func (r *TransactionRepository) ListStalePending(ctx context.Context, db ports.DBTX, olderThan time.Time, limit int) ([]*domain.Transaction, error) {
	return r.listTransactions(ctx, db, "list stale pending transactions", `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = 'PENDING' AND created_at < $1 AND deleted_at IS NULL
		ORDER BY created_at
		LIMIT $2`, olderThan, limitOrAll(limit))
}

func (r *TransactionRepository) ListCompletedForSettlement(ctx context.Context, db ports.DBTX, merchantID uuid.UUID, start, end time.Time) ([]*domain.Transaction, error) {
	return r.listTransactions(ctx, db, "list settlement transactions", `
		SELECT `+transactionColumns+` FROM transactions
		WHERE merchant_id = $1 AND status = 'COMPLETED'
		  AND transaction_date >= $2 AND transaction_date < $3
		  AND deleted_at IS NULL
		ORDER BY transaction_date`, merchantID, start, end)
}

func (r *TransactionRepository) ListMerchantsWithCompleted(ctx context.Context, db ports.DBTX, start, end time.Time) ([]uuid.UUID, error) {
	rows, err := r.on(db).Query(ctx, `
		SELECT DISTINCT merchant_id FROM transactions
		WHERE merchant_id IS NOT NULL AND status = 'COMPLETED'
		  AND transaction_date >= $1 AND transaction_date < $2
		  AND deleted_at IS NULL
		ORDER BY merchant_id`, start, end)
	if err != nil {
		return nil, mapError(err, "list settlement merchants", domain.ErrorCodeTxnNotFound)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	return ids, mapError(err, "list settlement merchants", domain.ErrorCodeTxnNotFound)
}
