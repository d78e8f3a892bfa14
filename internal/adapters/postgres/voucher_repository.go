package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/voucher-ledger/internal/converters"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/shopspring/decimal"
)

const templateColumns = `id, merchant_id, name, description, kind, value_type, value, currency,
	min_purchase_amount, max_discount_amount, usage_limit_per_user, total_usage_limit, issued_count,
	partial_redemption, valid_from, valid_until, is_active, created_at, updated_at, deleted_at`

// TemplateRepository implements ports.TemplateRepository
type TemplateRepository struct {
	executor
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db ports.DBPort) *TemplateRepository {
	return &TemplateRepository{executor{pool: db.GetDB()}}
}

func scanTemplate(row rowScanner) (*domain.VoucherTemplate, error) {
	var (
		t                          domain.VoucherTemplate
		value, minPurchase, maxDis pgtype.Numeric
		totalLimit                 pgtype.Int4
		deletedAt                  pgtype.Timestamptz
	)
	err := row.Scan(&t.ID, &t.MerchantID, &t.Name, &t.Description, &t.Kind, &t.ValueType, &value, &t.Currency,
		&minPurchase, &maxDis, &t.UsageLimitPerUser, &totalLimit, &t.IssuedCount,
		&t.PartialRedemption, &t.ValidFrom, &t.ValidUntil, &t.IsActive, &t.CreatedAt, &t.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeNumerics(map[*decimal.Decimal]pgtype.Numeric{&t.Value: value, &t.MinPurchaseAmount: minPurchase}); err != nil {
		return nil, err
	}
	if t.MaxDiscountAmount, err = converters.FromNullableNumeric(maxDis); err != nil {
		return nil, err
	}
	t.TotalUsageLimit = converters.FromNullableInt32(totalLimit)
	t.DeletedAt = converters.FromNullableTimestamptz(deletedAt)
	t.ValidFrom, t.ValidUntil = t.ValidFrom.UTC(), t.ValidUntil.UTC()
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()
	return &t, nil
}

func (r *TemplateRepository) Create(ctx context.Context, tx ports.DBTX, t *domain.VoucherTemplate) error {
	_, err := r.on(tx).Exec(ctx, `
		INSERT INTO voucher_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		t.ID, t.MerchantID, t.Name, t.Description, string(t.Kind), string(t.ValueType), converters.ToNumeric(t.Value), t.Currency,
		converters.ToNumeric(t.MinPurchaseAmount), converters.ToNullableNumeric(t.MaxDiscountAmount), t.UsageLimitPerUser,
		converters.ToNullableInt32(t.TotalUsageLimit), t.IssuedCount, t.PartialRedemption, t.ValidFrom, t.ValidUntil,
		t.IsActive, t.CreatedAt, t.UpdatedAt, converters.ToNullableTimestamptz(t.DeletedAt))
	return mapError(err, "create voucher template", domain.ErrorCodeTemplateNotFound)
}

func (r *TemplateRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.VoucherTemplate, error) {
	row := r.on(db).QueryRow(ctx, `SELECT `+templateColumns+` FROM voucher_templates WHERE id = $1 AND deleted_at IS NULL`, id)
	t, err := scanTemplate(row)
	return t, mapError(err, "get voucher template", domain.ErrorCodeTemplateNotFound)
}

func (r *TemplateRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.VoucherTemplate, error) {
	row := r.on(tx).QueryRow(ctx, `SELECT `+templateColumns+` FROM voucher_templates WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
	t, err := scanTemplate(row)
	return t, mapError(err, "lock voucher template", domain.ErrorCodeTemplateNotFound)
}

func (r *TemplateRepository) Update(ctx context.Context, tx ports.DBTX, t *domain.VoucherTemplate) error {
	tag, err := r.on(tx).Exec(ctx, `
		UPDATE voucher_templates
		SET name = $2, description = $3, is_active = $4, issued_count = $5, updated_at = $6, deleted_at = $7
		WHERE id = $1`,
		t.ID, t.Name, t.Description, t.IsActive, t.IssuedCount, t.UpdatedAt, converters.ToNullableTimestamptz(t.DeletedAt))
	if err != nil {
		return mapError(err, "update voucher template", domain.ErrorCodeTemplateNotFound)
	}
	if tag.RowsAffected() == 0 {
		return domain.Errorf(domain.ErrorCodeTemplateNotFound, "voucher template %s not found", t.ID)
	}
	return nil
}

const voucherColumns = `id, template_id, code, owner_user_id, sender_user_id, gift_message, is_gift, current_value,
	status, issued_at, expires_at, redeemed_at, version, created_at, updated_at, deleted_at`

// VoucherRepository implements ports.VoucherRepository
type VoucherRepository struct {
	executor
}

// NewVoucherRepository creates a new voucher repository
func NewVoucherRepository(db ports.DBPort) *VoucherRepository {
	return &VoucherRepository{executor{pool: db.GetDB()}}
}

func scanVoucher(row rowScanner) (*domain.Voucher, error) {
	var (
		v                     domain.Voucher
		owner, sender         pgtype.UUID
		value                 pgtype.Numeric
		redeemedAt, deletedAt pgtype.Timestamptz
	)
	err := row.Scan(&v.ID, &v.TemplateID, &v.Code, &owner, &sender, &v.GiftMessage, &v.IsGift, &value,
		&v.Status, &v.IssuedAt, &v.ExpiresAt, &redeemedAt, &v.Version, &v.CreatedAt, &v.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if v.CurrentValue, err = converters.FromNumeric(value); err != nil {
		return nil, err
	}
	v.OwnerUserID = converters.FromNullableUUID(owner)
	v.SenderUserID = converters.FromNullableUUID(sender)
	v.RedeemedAt = converters.FromNullableTimestamptz(redeemedAt)
	v.DeletedAt = converters.FromNullableTimestamptz(deletedAt)
	v.IssuedAt, v.ExpiresAt = v.IssuedAt.UTC(), v.ExpiresAt.UTC()
	v.CreatedAt, v.UpdatedAt = v.CreatedAt.UTC(), v.UpdatedAt.UTC()
	return &v, nil
}

func (r *VoucherRepository) Create(ctx context.Context, tx ports.DBTX, v *domain.Voucher) error {
	v.Version = 1
	_, err := r.on(tx).Exec(ctx, `
		INSERT INTO vouchers (`+voucherColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		v.ID, v.TemplateID, v.Code, converters.ToNullableUUIDFromUUID(v.OwnerUserID), converters.ToNullableUUIDFromUUID(v.SenderUserID),
		v.GiftMessage, v.IsGift, converters.ToNumeric(v.CurrentValue), string(v.Status), v.IssuedAt, v.ExpiresAt,
		converters.ToNullableTimestamptz(v.RedeemedAt), v.Version, v.CreatedAt, v.UpdatedAt, converters.ToNullableTimestamptz(v.DeletedAt))
	return mapError(err, "create voucher", domain.ErrorCodeVoucherNotFound)
}

func (r *VoucherRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Voucher, error) {
	row := r.on(db).QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1 AND deleted_at IS NULL`, id)
	v, err := scanVoucher(row)
	return v, mapError(err, "get voucher", domain.ErrorCodeVoucherNotFound)
}

func (r *VoucherRepository) GetByCode(ctx context.Context, db ports.DBTX, code string) (*domain.Voucher, error) {
	row := r.on(db).QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1 AND deleted_at IS NULL`, code)
	v, err := scanVoucher(row)
	return v, mapError(err, "get voucher by code", domain.ErrorCodeVoucherNotFound)
}

func (r *VoucherRepository) GetByCodeForUpdate(ctx context.Context, tx ports.DBTX, code string) (*domain.Voucher, error) {
	row := r.on(tx).QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1 AND deleted_at IS NULL FOR UPDATE`, code)
	v, err := scanVoucher(row)
	return v, mapError(err, "lock voucher", domain.ErrorCodeVoucherNotFound)
}

// Update writes the voucher if its version is unchanged and bumps the version
func (r *VoucherRepository) Update(ctx context.Context, tx ports.DBTX, v *domain.Voucher) error {
	tag, err := r.on(tx).Exec(ctx, `
		UPDATE vouchers
		SET owner_user_id = $3, sender_user_id = $4, gift_message = $5, is_gift = $6, current_value = $7,
		    status = $8, redeemed_at = $9, updated_at = $10, deleted_at = $11, version = version + 1
		WHERE id = $1 AND version = $2`,
		v.ID, v.Version, converters.ToNullableUUIDFromUUID(v.OwnerUserID), converters.ToNullableUUIDFromUUID(v.SenderUserID),
		v.GiftMessage, v.IsGift, converters.ToNumeric(v.CurrentValue), string(v.Status),
		converters.ToNullableTimestamptz(v.RedeemedAt), v.UpdatedAt, converters.ToNullableTimestamptz(v.DeletedAt))
	if err != nil {
		return mapError(err, "update voucher", domain.ErrorCodeVoucherNotFound)
	}
	if tag.RowsAffected() == 0 {
		return domain.Errorf(domain.ErrorCodeConcurrencyConflict, "voucher %s was modified concurrently", v.ID)
	}
	v.Version++
	return nil
}

func (r *VoucherRepository) CountByTemplateAndOwner(ctx context.Context, db ports.DBTX, templateID, ownerID uuid.UUID) (int, error) {
	var count int
	err := r.on(db).QueryRow(ctx, `
		SELECT COUNT(*) FROM vouchers
		WHERE template_id = $1 AND owner_user_id = $2 AND deleted_at IS NULL`,
		templateID, ownerID).Scan(&count)
	return count, mapError(err, "count vouchers", domain.ErrorCodeVoucherNotFound)
}

func (r *VoucherRepository) ListExpirable(ctx context.Context, db ports.DBTX, now time.Time, limit int) ([]*domain.Voucher, error) {
	rows, err := r.on(db).Query(ctx, `
		SELECT `+voucherColumns+` FROM vouchers
		WHERE status IN ('PENDING', 'ACTIVE') AND expires_at <= $1 AND deleted_at IS NULL
		ORDER BY expires_at
		LIMIT $2`, now, limitOrAll(limit))
	if err != nil {
		return nil, mapError(err, "list expirable vouchers", domain.ErrorCodeVoucherNotFound)
	}
	defer rows.Close()

	var out []*domain.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, mapError(err, "scan voucher", domain.ErrorCodeVoucherNotFound)
		}
		out = append(out, v)
	}
	return out, mapError(rows.Err(), "list expirable vouchers", domain.ErrorCodeVoucherNotFound)
}

const redemptionColumns = `id, voucher_id, code, user_id, merchant_id, account_id, transaction_id, idempotency_key,
	amount, fee, currency, status, step, created_at, updated_at`

// RedemptionRepository implements ports.RedemptionRepository
type RedemptionRepository struct {
	executor
}

// NewRedemptionRepository creates a new redemption repository
func NewRedemptionRepository(db ports.DBPort) *RedemptionRepository {
	return &RedemptionRepository{executor{pool: db.GetDB()}}
}

func scanRedemption(row rowScanner) (*domain.Redemption, error) {
	var (
		red          domain.Redemption
		account, txn pgtype.UUID
		key          pgtype.Text
		amount, fee  pgtype.Numeric
	)
	err := row.Scan(&red.ID, &red.VoucherID, &red.Code, &red.UserID, &red.MerchantID, &account, &txn, &key,
		&amount, &fee, &red.Currency, &red.Status, &red.Step, &red.CreatedAt, &red.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeNumerics(map[*decimal.Decimal]pgtype.Numeric{&red.Amount: amount, &red.Fee: fee}); err != nil {
		return nil, err
	}
	red.AccountID = converters.FromNullableUUID(account)
	red.TransactionID = converters.FromNullableUUID(txn)
	red.IdempotencyKey = converters.FromNullableText(key)
	red.CreatedAt, red.UpdatedAt = red.CreatedAt.UTC(), red.UpdatedAt.UTC()
	return &red, nil
}

func (r *RedemptionRepository) Create(ctx context.Context, tx ports.DBTX, red *domain.Redemption) error {
	_, err := r.on(tx).Exec(ctx, `
		INSERT INTO redemptions (`+redemptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		red.ID, red.VoucherID, red.Code, red.UserID, red.MerchantID,
		converters.ToNullableUUIDFromUUID(red.AccountID), converters.ToNullableUUIDFromUUID(red.TransactionID),
		converters.ToNullableText(red.IdempotencyKey), converters.ToNumeric(red.Amount), converters.ToNumeric(red.Fee),
		red.Currency, string(red.Status), string(red.Step), red.CreatedAt, red.UpdatedAt)
	return mapError(err, "create redemption", domain.ErrorCodeRedemptionNotFound)
}

func (r *RedemptionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*domain.Redemption, error) {
	row := r.on(db).QueryRow(ctx, `SELECT `+redemptionColumns+` FROM redemptions WHERE id = $1`, id)
	red, err := scanRedemption(row)
	return red, mapError(err, "get redemption", domain.ErrorCodeRedemptionNotFound)
}

func (r *RedemptionRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.Redemption, error) {
	row := r.on(tx).QueryRow(ctx, `SELECT `+redemptionColumns+` FROM redemptions WHERE id = $1 FOR UPDATE`, id)
	red, err := scanRedemption(row)
	return red, mapError(err, "lock redemption", domain.ErrorCodeRedemptionNotFound)
}

func (r *RedemptionRepository) GetByIdempotencyKey(ctx context.Context, db ports.DBTX, key string) (*domain.Redemption, error) {
	row := r.on(db).QueryRow(ctx, `SELECT `+redemptionColumns+` FROM redemptions WHERE idempotency_key = $1`, key)
	red, err := scanRedemption(row)
	return red, mapError(err, "get redemption by idempotency key", domain.ErrorCodeRedemptionNotFound)
}

func (r *RedemptionRepository) Update(ctx context.Context, tx ports.DBTX, red *domain.Redemption) error {
	tag, err := r.on(tx).Exec(ctx, `
		UPDATE redemptions
		SET account_id = $2, transaction_id = $3, status = $4, step = $5, updated_at = $6
		WHERE id = $1`,
		red.ID, converters.ToNullableUUIDFromUUID(red.AccountID), converters.ToNullableUUIDFromUUID(red.TransactionID),
		string(red.Status), string(red.Step), red.UpdatedAt)
	if err != nil {
		return mapError(err, "update redemption", domain.ErrorCodeRedemptionNotFound)
	}
	if tag.RowsAffected() == 0 {
		return domain.Errorf(domain.ErrorCodeRedemptionNotFound, "redemption %s not found", red.ID)
	}
	return nil
}

func (r *RedemptionRepository) ListPending(ctx context.Context, db ports.DBTX, olderThan time.Time, limit int) ([]*domain.Redemption, error) {
	rows, err := r.on(db).Query(ctx, `
		SELECT `+redemptionColumns+` FROM redemptions
		WHERE status = 'PENDING' AND updated_at < $1
		ORDER BY created_at
		LIMIT $2`, olderThan, limitOrAll(limit))
	if err != nil {
		return nil, mapError(err, "list pending redemptions", domain.ErrorCodeRedemptionNotFound)
	}
	defer rows.Close()

	var out []*domain.Redemption
	for rows.Next() {
		red, err := scanRedemption(rows)
		if err != nil {
			return nil, mapError(err, "scan redemption", domain.ErrorCodeRedemptionNotFound)
		}
		out = append(out, red)
	}
	return out, mapError(rows.Err(), "list pending redemptions", domain.ErrorCodeRedemptionNotFound)
}
