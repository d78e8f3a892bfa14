package ports

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is what repositories run statements on: the pool, or the pgx.Tx a
// service opened. Repository methods accept nil to mean "use the pool".
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// TransactionManager scopes a unit of work. Every saga step, ledger
// mutation and settlement run is exactly one call; returning an error from
// fn rolls back everything it wrote, outbox rows included.
type TransactionManager interface {
	// WithTransaction runs fn in a read-write transaction. Serialization
	// failures and deadlocks surface as CONCURRENCY_CONFLICT.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error

	// WithReadOnlyTransaction runs fn against one consistent snapshot
	WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// DBPort is the Postgres-backed TransactionManager that also hands out its pool
type DBPort interface {
	GetDB() *pgxpool.Pool
	TransactionManager
}
