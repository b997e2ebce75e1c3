package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/creditkit/pkg/pg"
)

// PostgresStore keeps ledgers in token_ledgers and the log in token_transactions.
// Statements run inside the transaction bound to ctx by pg.Transactor, if any.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("ledger: pool is required")
	}
	return &PostgresStore{pool: pool}
}

const (
	upsertLedgerSQL = `
INSERT INTO token_ledgers (user_id, balance, used_total, created_at, updated_at)
VALUES ($1, $2, 0, $3, $3)
ON CONFLICT (user_id) DO UPDATE SET
  balance = token_ledgers.balance + EXCLUDED.balance,
  updated_at = EXCLUDED.updated_at
RETURNING user_id, balance, used_total, created_at, updated_at, (xmax = 0) AS inserted`

	debitLedgerSQL = `
UPDATE token_ledgers SET
  balance = balance - $2,
  used_total = used_total + $2,
  updated_at = $3
WHERE user_id = $1 AND balance >= $2
RETURNING user_id, balance, used_total, created_at, updated_at`

	insertTransactionSQL = `
INSERT INTO token_transactions (id, user_id, amount, action, metadata, dedupe_key, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
ON CONFLICT (dedupe_key) DO NOTHING`

	getLedgerSQL = `
SELECT user_id, balance, used_total, created_at, updated_at
FROM token_ledgers
WHERE user_id = $1`

	listTransactionsSQL = `
SELECT id, user_id, amount, action, metadata, COALESCE(dedupe_key, ''), created_at
FROM token_transactions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT NULLIF($2, 0)`

	hasCreditSQL = `
SELECT EXISTS (
  SELECT 1 FROM token_transactions
  WHERE user_id = $1
    AND amount > 0
    AND ($2 = '' OR action = $2)
    AND ($3::timestamptz IS NULL OR created_at >= $3)
    AND (COALESCE(cardinality($4::text[]), 0) = 0 OR metadata->>'type' = ANY($4::text[]))
)`
)

func (s *PostgresStore) Credit(ctx context.Context, tx Transaction) (*Ledger, error) {
	var out *Ledger
	err := pg.InTx(ctx, pg.Conn(ctx, s.pool), func(dbtx pgx.Tx) error {
		var (
			l        Ledger
			inserted bool
		)
		err := dbtx.QueryRow(ctx, upsertLedgerSQL, tx.UserID, tx.Amount, tx.CreatedAt).
			Scan(&l.UserID, &l.Balance, &l.UsedTotal, &l.CreatedAt, &l.UpdatedAt, &inserted)
		if err != nil {
			return err
		}

		resolveFirstCredit(&tx, inserted)
		if err := insertTransaction(ctx, dbtx, tx); err != nil {
			return err
		}

		out = &l
		return nil
	})
	if err != nil {
		return nil, classify(ErrFailedToCredit, err)
	}
	return out, nil
}

func (s *PostgresStore) Debit(ctx context.Context, tx Transaction) (*Ledger, error) {
	var out *Ledger
	err := pg.InTx(ctx, pg.Conn(ctx, s.pool), func(dbtx pgx.Tx) error {
		var l Ledger
		err := dbtx.QueryRow(ctx, debitLedgerSQL, tx.UserID, -tx.Amount, tx.CreatedAt).
			Scan(&l.UserID, &l.Balance, &l.UsedTotal, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			if pg.IsNotFoundError(err) {
				return ErrInsufficientBalance
			}
			return err
		}

		if err := insertTransaction(ctx, dbtx, tx); err != nil {
			return err
		}

		out = &l
		return nil
	})
	if err != nil {
		return nil, classify(ErrFailedToDebit, err)
	}
	return out, nil
}

func insertTransaction(ctx context.Context, dbtx pgx.Tx, tx Transaction) error {
	meta, err := MarshalMetadata(tx.Metadata)
	if err != nil {
		return err
	}

	tag, err := dbtx.Exec(ctx, insertTransactionSQL,
		tx.ID, tx.UserID, tx.Amount, string(tx.Action), meta, tx.DedupeKey, tx.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyCredited
	}
	return nil
}

func (s *PostgresStore) GetLedger(ctx context.Context, userID uuid.UUID) (*Ledger, error) {
	var l Ledger
	err := pg.Conn(ctx, s.pool).QueryRow(ctx, getLedgerSQL, userID).
		Scan(&l.UserID, &l.Balance, &l.UsedTotal, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrLedgerNotFound
		}
		return nil, errors.Join(ErrFailedToLoadLedger, err)
	}
	return &l, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error) {
	rows, err := pg.Conn(ctx, s.pool).Query(ctx, listTransactionsSQL, userID, max(limit, 0))
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadHistory, err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			tx     Transaction
			action string
			meta   []byte
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &action, &meta, &tx.DedupeKey, &tx.CreatedAt); err != nil {
			return nil, errors.Join(ErrFailedToLoadHistory, err)
		}
		tx.Action = Action(action)
		if tx.Metadata, err = UnmarshalMetadata(meta); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToLoadHistory, err)
	}

	return out, nil
}

func (s *PostgresStore) HasCredit(ctx context.Context, q CreditQuery) (bool, error) {
	var since *time.Time
	if !q.Since.IsZero() {
		since = &q.Since
	}
	types := make([]string, 0, len(q.Types))
	for _, t := range q.Types {
		types = append(types, string(t))
	}

	var found bool
	err := pg.Conn(ctx, s.pool).QueryRow(ctx, hasCreditSQL, q.UserID, string(q.Action), since, types).Scan(&found)
	if err != nil {
		return false, errors.Join(ErrFailedToQueryHistory, err)
	}
	return found, nil
}

// classify keeps domain sentinels intact and maps retryable Postgres failures
// to ErrConflict.
func classify(op, err error) error {
	switch {
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrAlreadyCredited):
		return err
	case pg.IsSerializationError(err):
		return errors.Join(ErrConflict, err)
	case pg.IsForeignKeyViolationError(err):
		return errors.Join(op, ErrLedgerNotFound, err)
	default:
		return errors.Join(op, err)
	}
}
