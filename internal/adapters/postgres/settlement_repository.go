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

const settlementColumns = `id, merchant_id, period_start, period_end, total_revenue, total_fees, net_payout_amount,
	currency, transaction_count, status, payout_date, bank_reference, notes, created_at, updated_at`

// SettlementRepository implements ports.SettlementRepository
type SettlementRepository struct {
	executor
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db ports.DBPort) *SettlementRepository {
	return &SettlementRepository{executor{pool: db.GetDB()}}
}

func scanSettlement(row rowScanner) (*domain.PaymentSettlement, error) {
	var (
		s                  domain.PaymentSettlement
		revenue, fees, net pgtype.Numeric
		payoutDate         pgtype.Timestamptz
	)
	err := row.Scan(&s.ID, &s.MerchantID, &s.PeriodStart, &s.PeriodEnd, &revenue, &fees, &net,
		&s.Currency, &s.TransactionCount, &s.Status, &payoutDate, &s.BankReference, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeNumerics(map[*decimal.Decimal]pgtype.Numeric{
		&s.TotalRevenue:    revenue,
		&s.TotalFees:       fees,
		&s.NetPayoutAmount: net,
	}); err != nil {
		return nil, err
	}
	s.PayoutDate = converters.FromNullableTimestamptz(payoutDate)
	s.PeriodStart, s.PeriodEnd = s.PeriodStart.UTC(), s.PeriodEnd.UTC()
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	return &s, nil
}

func (r *SettlementRepository) Create(ctx context.Context, tx ports.DBTX, s *domain.PaymentSettlement) error {
	_, err := r.on(tx).Exec(ctx, `
		INSERT INTO payment_settlements (`+settlementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		s.ID, s.MerchantID, s.PeriodStart, s.PeriodEnd, converters.ToNumeric(s.TotalRevenue), converters.ToNumeric(s.TotalFees),
		converters.ToNumeric(s.NetPayoutAmount), s.Currency, s.TransactionCount, string(s.Status),
		converters.ToNullableTimestamptz(s.PayoutDate), s.BankReference, s.Notes, s.CreatedAt, s.UpdatedAt)
	return mapError(err, "create settlement", domain.ErrorCodeSettlementNotFound)
}

func (r *SettlementRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.PaymentSettlement, error) {
	row := r.on(db).QueryRow(ctx, `SELECT `+settlementColumns+` FROM payment_settlements WHERE id = $1`, id)
	s, err := scanSettlement(row)
	return s, mapError(err, "get settlement", domain.ErrorCodeSettlementNotFound)
}

func (r *SettlementRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.PaymentSettlement, error) {
	row := r.on(tx).QueryRow(ctx, `SELECT `+settlementColumns+` FROM payment_settlements WHERE id = $1 FOR UPDATE`, id)
	s, err := scanSettlement(row)
	return s, mapError(err, "lock settlement", domain.ErrorCodeSettlementNotFound)
}

func (r *SettlementRepository) Update(ctx context.Context, tx ports.DBTX, s *domain.PaymentSettlement) error {
	tag, err := r.on(tx).Exec(ctx, `
		UPDATE payment_settlements
		SET status = $2, payout_date = $3, bank_reference = $4, notes = $5, updated_at = $6
		WHERE id = $1`,
		s.ID, string(s.Status), converters.ToNullableTimestamptz(s.PayoutDate), s.BankReference, s.Notes, s.UpdatedAt)
	if err != nil {
		return mapError(err, "update settlement", domain.ErrorCodeSettlementNotFound)
	}
	if tag.RowsAffected() == 0 {
		return domain.Errorf(domain.ErrorCodeSettlementNotFound, "settlement %s not found", s.ID)
	}
	return nil
}

func (r *SettlementRepository) list(ctx context.Context, db ports.DBTX, op, query string, args ...interface{}) ([]*domain.PaymentSettlement, error) {
	rows, err := r.on(db).Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, op, domain.ErrorCodeSettlementNotFound)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.PaymentSettlement, error) {
		return scanSettlement(row)
	})
	return out, mapError(err, op, domain.ErrorCodeSettlementNotFound)
}

// ListOverlapping uses half-open intersection: start < other.end AND other.start < end
func (r *SettlementRepository) ListOverlapping(ctx context.Context, db ports.DBTX, merchantID uuid.UUID, start, end time.Time) ([]*domain.PaymentSettlement, error) {
	return r.list(ctx, db, "list overlapping settlements", `
		SELECT `+settlementColumns+` FROM payment_settlements
		WHERE merchant_id = $1 AND status IN ('PENDING', 'COMPLETED')
		  AND period_start < $3 AND $2 < period_end
		ORDER BY period_start`, merchantID, start, end)
}

func (r *SettlementRepository) ListByMerchant(ctx context.Context, db ports.DBTX, merchantID uuid.UUID, limit int) ([]*domain.PaymentSettlement, error) {
	return r.list(ctx, db, "list settlements", `
		SELECT `+settlementColumns+` FROM payment_settlements
		WHERE merchant_id = $1
		ORDER BY period_start DESC
		LIMIT $2`, merchantID, limitOrAll(limit))
}

// LockMerchant takes a transaction-scoped advisory lock keyed by the merchant
func (r *SettlementRepository) LockMerchant(ctx context.Context, tx ports.DBTX, merchantID uuid.UUID) error {
	_, err := r.on(tx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('settlement:' || $1::text))`, merchantID.String())
	return mapError(err, "lock merchant settlements", domain.ErrorCodeSettlementNotFound)
}
