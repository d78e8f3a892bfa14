package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

var _ ports.DBPort = (*DBExecutor)(nil)

// DBExecutor implements the DBPort interface for PostgreSQL
type DBExecutor struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// Option configures a DBExecutor
type Option func(*DBExecutor)

// WithLockTimeout bounds how long a write transaction waits for a row lock.
// A timed-out wait surfaces as CONCURRENCY_CONFLICT and is retried by the services.
func WithLockTimeout(d time.Duration) Option {
	return func(db *DBExecutor) {
		db.lockTimeout = d
	}
}

// NewDBExecutor creates a new PostgreSQL database executor
func NewDBExecutor(pool *pgxpool.Pool, opts ...Option) *DBExecutor {
	db := &DBExecutor{pool: pool}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// GetDB returns the underlying database connection pool
func (db *DBExecutor) GetDB() *pgxpool.Pool {
	return db.pool
}

// WithTransaction executes a function within a database transaction
// Transaction is explicitly passed to the callback function
func (db *DBExecutor) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Ensure rollback on panic or error
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p) // Re-throw panic after rollback
		}
	}()

	if db.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", db.lockTimeout.Milliseconds())); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "commit transaction", "")
	}

	return nil
}

// WithReadOnlyTransaction executes a function within a read-only transaction
// Provides consistent reads across multiple queries
func (db *DBExecutor) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{
		AccessMode: pgx.ReadOnly,
		IsoLevel:   pgx.RepeatableRead,
	})
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit read-only transaction: %w", err)
	}

	return nil
}
