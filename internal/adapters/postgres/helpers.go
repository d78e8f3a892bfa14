package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/voucher-ledger/internal/converters"
	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// PostgreSQL error codes the repositories translate into domain errors
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// executor picks the caller's transaction when given one, the pool otherwise
type executor struct {
	pool *pgxpool.Pool
}

func (e executor) on(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return e.pool
}

// mapError translates pgx errors into domain errors. notFound is used for pgx.ErrNoRows.
func mapError(err error, op string, notFound domain.ErrorCode) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Errorf(notFound, "%s: not found", op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return domain.WrapError(domain.ErrorCodeAlreadyExists, op, err).WithDetail("constraint", pgErr.ConstraintName)
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return domain.WrapError(domain.ErrorCodeConcurrencyConflict, op, err)
		case pgCheckViolation, pgForeignKeyViolation:
			return domain.WrapError(domain.ErrorCodeValidationFailed, op, err).WithDetail("constraint", pgErr.ConstraintName)
		}
	}

	return domain.WrapError(domain.ErrorCodeDatabaseError, op, err)
}

// decodeNumerics converts scanned numeric columns into their destinations
func decodeNumerics(fields map[*decimal.Decimal]pgtype.Numeric) error {
	for dst, n := range fields {
		d, err := converters.FromNumeric(n)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "decode numeric", err)
		}
		*dst = d
	}
	return nil
}

// limitOrAll maps a non-positive limit to no limit
func limitOrAll(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}
