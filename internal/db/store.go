package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNoRows is returned when a single row lookup matches nothing.
	ErrNoRows = pgx.ErrNoRows
	// ErrConflict wraps transient write conflicts that are safe to retry as a whole unit.
	ErrConflict = errors.New("db: write conflict")
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// ConflictError carries the constraint that caused a retryable failure.
type ConflictError struct {
	Constraint string
	Err        error
}

func (e *ConflictError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("db: write conflict on %s: %v", e.Constraint, e.Err)
	}
	return fmt.Sprintf("db: write conflict: %v", e.Err)
}

func (e *ConflictError) Unwrap() []error { return []error{ErrConflict, e.Err} }

func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return &ConflictError{Constraint: pgErr.ConstraintName, Err: err}
		}
	}
	return err
}

// PoolStore is the Postgres backed Store.
type PoolStore struct {
	pool *pgxpool.Pool
	q    *Queries
}

var _ Store = (*PoolStore)(nil)

func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool, q: New(pool)}
}

func (s *PoolStore) Queries() Querier { return s.q }

func (s *PoolStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// InTx runs fn on a READ COMMITTED transaction. Guarded updates re-check their
// predicate after waiting on row locks, which is all the sale path relies on.
func (s *PoolStore) InTx(ctx context.Context, fn func(Querier) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(s.q.WithTx(tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}
