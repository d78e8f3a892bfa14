package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/voucher-ledger/internal/converters"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, user_id, account_type, account_identifier, balance, currency, status, is_default,
	version, created_at, updated_at, deleted_at`

// AccountRepository implements ports.AccountRepository
type AccountRepository struct {
	executor
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db ports.DBPort) *AccountRepository {
	return &AccountRepository{executor{pool: db.GetDB()}}
}

func scanAccount(row rowScanner) (*domain.PaymentAccount, error) {
	var (
		a         domain.PaymentAccount
		balance   pgtype.Numeric
		deletedAt pgtype.Timestamptz
	)
	err := row.Scan(&a.ID, &a.UserID, &a.AccountType, &a.AccountIdentifier, &balance, &a.Currency, &a.Status,
		&a.IsDefault, &a.Version, &a.CreatedAt, &a.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if a.Balance, err = converters.FromNumeric(balance); err != nil {
		return nil, err
	}
	a.DeletedAt = converters.FromNullableTimestamptz(deletedAt)
	a.CreatedAt, a.UpdatedAt = a.CreatedAt.UTC(), a.UpdatedAt.UTC()
	return &a, nil
}

func (r *AccountRepository) Create(ctx context.Context, tx ports.DBTX, a *domain.PaymentAccount) error {
	a.Version = 1
	_, err := r.on(tx).Exec(ctx, `
		INSERT INTO payment_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.UserID, string(a.AccountType), a.AccountIdentifier, converters.ToNumeric(a.Balance), a.Currency,
		string(a.Status), a.IsDefault, a.Version, a.CreatedAt, a.UpdatedAt, converters.ToNullableTimestamptz(a.DeletedAt))
	return mapError(err, "create payment account", domain.ErrorCodeAccountNotFound)
}

func (r *AccountRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.PaymentAccount, error) {
	row := r.on(db).QueryRow(ctx, `SELECT `+accountColumns+` FROM payment_accounts WHERE id = $1 AND deleted_at IS NULL`, id)
	a, err := scanAccount(row)
	return a, mapError(err, "get payment account", domain.ErrorCodeAccountNotFound)
}

func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.PaymentAccount, error) {
	row := r.on(tx).QueryRow(ctx, `SELECT `+accountColumns+` FROM payment_accounts WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
	a, err := scanAccount(row)
	return a, mapError(err, "lock payment account", domain.ErrorCodeAccountNotFound)
}

// UpdateBalance writes balance and status if the version is unchanged and bumps the version
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx ports.DBTX, a *domain.PaymentAccount) error {
	tag, err := r.on(tx).Exec(ctx, `
		UPDATE payment_accounts
		SET balance = $3, status = $4, updated_at = $5, version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL`,
		a.ID, a.Version, converters.ToNumeric(a.Balance), string(a.Status), a.UpdatedAt)
	if err != nil {
		return mapError(err, "update account balance", domain.ErrorCodeAccountNotFound)
	}
	if tag.RowsAffected() == 0 {
		return domain.Errorf(domain.ErrorCodeConcurrencyConflict, "payment account %s was modified concurrently", a.ID)
	}
	a.Version++
	return nil
}

func (r *AccountRepository) ListByUser(ctx context.Context, db ports.DBTX, userID uuid.UUID) ([]*domain.PaymentAccount, error) {
	rows, err := r.on(db).Query(ctx, `
		SELECT `+accountColumns+` FROM payment_accounts
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY is_default DESC, created_at`, userID)
	if err != nil {
		return nil, mapError(err, "list payment accounts", domain.ErrorCodeAccountNotFound)
	}
	defer rows.Close()

	var out []*domain.PaymentAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, mapError(err, "scan payment account", domain.ErrorCodeAccountNotFound)
		}
		out = append(out, a)
	}
	return out, mapError(rows.Err(), "list payment accounts", domain.ErrorCodeAccountNotFound)
}

const ledgerEntryColumns = `id, account_id, amount, balance_after, currency, idempotency_key, reason, created_at`

// LedgerEntryRepository implements ports.LedgerEntryRepository
type LedgerEntryRepository struct {
	executor
}

// NewLedgerEntryRepository creates a new ledger entry repository
func NewLedgerEntryRepository(db ports.DBPort) *LedgerEntryRepository {
	return &LedgerEntryRepository{executor{pool: db.GetDB()}}
}

func scanLedgerEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var (
		e             domain.LedgerEntry
		amount, after pgtype.Numeric
		key           pgtype.Text
	)
	err := row.Scan(&e.ID, &e.AccountID, &amount, &after, &e.Currency, &key, &e.Reason, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeNumerics(map[*decimal.Decimal]pgtype.Numeric{&e.Amount: amount, &e.BalanceAfter: after}); err != nil {
		return nil, err
	}
	e.IdempotencyKey = converters.StringOrEmpty(converters.FromNullableText(key))
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (r *LedgerEntryRepository) Create(ctx context.Context, tx ports.DBTX, e *domain.LedgerEntry) error {
	_, err := r.on(tx).Exec(ctx, `
		INSERT INTO ledger_entries (`+ledgerEntryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.AccountID, converters.ToNumeric(e.Amount), converters.ToNumeric(e.BalanceAfter), e.Currency,
		converters.ToNullableTextFromString(e.IdempotencyKey), e.Reason, e.CreatedAt)
	return mapError(err, "create ledger entry", domain.ErrorCodeLedgerEntryNotFound)
}

func (r *LedgerEntryRepository) GetByIdempotencyKey(ctx context.Context, db ports.DBTX, accountID uuid.UUID, key string) (*domain.LedgerEntry, error) {
	row := r.on(db).QueryRow(ctx, `
		SELECT `+ledgerEntryColumns+` FROM ledger_entries
		WHERE account_id = $1 AND idempotency_key = $2`, accountID, key)
	e, err := scanLedgerEntry(row)
	return e, mapError(err, "get ledger entry", domain.ErrorCodeLedgerEntryNotFound)
}

func (r *LedgerEntryRepository) ListByAccount(ctx context.Context, db ports.DBTX, accountID uuid.UUID, limit int) ([]*domain.LedgerEntry, error) {
	rows, err := r.on(db).Query(ctx, `
		SELECT `+ledgerEntryColumns+` FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limitOrAll(limit))
	if err != nil {
		return nil, mapError(err, "list ledger entries", domain.ErrorCodeLedgerEntryNotFound)
	}
	defer rows.Close()

	var out []*domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, mapError(err, "scan ledger entry", domain.ErrorCodeLedgerEntryNotFound)
		}
		out = append(out, e)
	}
	return out, mapError(rows.Err(), "list ledger entries", domain.ErrorCodeLedgerEntryNotFound)
}
