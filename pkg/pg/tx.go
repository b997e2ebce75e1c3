package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txCtxKey struct{}

// Conn returns the transaction bound to ctx by Transactor.WithinTx, or pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx, ok := ctx.Value(txCtxKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// Transactor runs a function inside one database transaction. Stores built on
// Conn pick the transaction up from the context, so several store calls
// commit or roll back together.
type Transactor struct {
	pool *pgxpool.Pool
}

func NewTransactor(pool *pgxpool.Pool) *Transactor {
	if pool == nil {
		panic("pg: pool is required")
	}
	return &Transactor{pool: pool}
}

// WithinTx calls fn with a context carrying the transaction. Nested calls
// reuse the outer transaction through a savepoint.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return InTx(ctx, Conn(ctx, t.pool), func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txCtxKey{}, tx))
	})
}

// InTx begins a transaction on q (a savepoint when q is already a transaction),
// runs fn and commits. Any error from fn rolls back.
func InTx(ctx context.Context, q Querier, fn func(tx pgx.Tx) error) error {
	tx, err := q.Begin(ctx)
	if err != nil {
		return errors.Join(ErrFailedToBeginTx, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrFailedToCommitTx, err)
	}
	return nil
}
