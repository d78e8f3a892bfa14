// Package memory provides an in-process implementation of the persistence
// ports. It backs local development and the service test suites.
//
// A single mutex plays the role of row locks: WithTransaction holds it for
// the whole callback, so every transaction runs under a total order, and a
// failed callback restores the snapshot taken when it began.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/voucher-ledger/internal/domain"
)

type txKey struct{}

// Store holds every table and implements ports.TransactionManager
type Store struct {
	mu   sync.Mutex
	data *tables
	seq  int64
}

type outboxRow struct {
	entry domain.OutboxEntry
	seq   int64
}

type tables struct {
	templates      map[uuid.UUID]domain.VoucherTemplate
	vouchers       map[uuid.UUID]domain.Voucher
	voucherCodes   map[string]uuid.UUID
	redemptions    map[uuid.UUID]domain.Redemption
	redemptionKeys map[string]uuid.UUID
	accounts       map[uuid.UUID]domain.PaymentAccount
	entries        map[uuid.UUID]domain.LedgerEntry
	entryKeys      map[string]uuid.UUID
	transactions   map[uuid.UUID]domain.Transaction
	externalRefs   map[string]uuid.UUID
	settlements    map[uuid.UUID]domain.PaymentSettlement
	outbox         map[uuid.UUID]outboxRow
}

func newTables() *tables {
	return &tables{
		templates:      make(map[uuid.UUID]domain.VoucherTemplate),
		vouchers:       make(map[uuid.UUID]domain.Voucher),
		voucherCodes:   make(map[string]uuid.UUID),
		redemptions:    make(map[uuid.UUID]domain.Redemption),
		redemptionKeys: make(map[string]uuid.UUID),
		accounts:       make(map[uuid.UUID]domain.PaymentAccount),
		entries:        make(map[uuid.UUID]domain.LedgerEntry),
		entryKeys:      make(map[string]uuid.UUID),
		transactions:   make(map[uuid.UUID]domain.Transaction),
		externalRefs:   make(map[string]uuid.UUID),
		settlements:    make(map[uuid.UUID]domain.PaymentSettlement),
		outbox:         make(map[uuid.UUID]outboxRow),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (t *tables) clone() *tables {
	return &tables{
		templates:      cloneMap(t.templates),
		vouchers:       cloneMap(t.vouchers),
		voucherCodes:   cloneMap(t.voucherCodes),
		redemptions:    cloneMap(t.redemptions),
		redemptionKeys: cloneMap(t.redemptionKeys),
		accounts:       cloneMap(t.accounts),
		entries:        cloneMap(t.entries),
		entryKeys:      cloneMap(t.entryKeys),
		transactions:   cloneMap(t.transactions),
		externalRefs:   cloneMap(t.externalRefs),
		settlements:    cloneMap(t.settlements),
		outbox:         cloneMap(t.outbox),
	}
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{data: newTables()}
}

func inTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

// WithTransaction runs fn holding the store lock. A nil pgx.Tx is passed;
// repositories of this package ignore their DBTX argument.
// Nested calls join the enclosing transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	if inTx(ctx) {
		return fn(ctx, nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, s), nil); err != nil {
		return err
	}
	// A deadline that passed mid-transaction aborts it, as a database commit would
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("commit transaction: %w", ctxErr)
		return err
	}
	return nil
}

// WithReadOnlyTransaction runs fn holding the store lock without a snapshot
func (s *Store) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if inTx(ctx) {
		return fn(ctx, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, s), nil)
}

// view runs fn against the tables, taking the lock unless the caller already holds it
func (s *Store) view(ctx context.Context, fn func(t *tables) error) error {
	if !inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.data)
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

func notFound(code domain.ErrorCode, what string, key interface{}) error {
	return domain.Errorf(code, "%s not found", what).WithDetail("key", fmt.Sprint(key))
}

func alreadyExists(what string, key interface{}) error {
	return domain.Errorf(domain.ErrorCodeAlreadyExists, "%s already exists", what).WithDetail("key", fmt.Sprint(key))
}

func versionConflict(what string, id uuid.UUID) error {
	return domain.Errorf(domain.ErrorCodeConcurrencyConflict, "%s %s was modified concurrently", what, id)
}
