package ledger

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Store persists ledgers and their transaction log. Implementations must make
// every mutating call a single atomic unit: the balance change and the
// appended transaction are written together or not at all.
type Store interface {
	// Credit creates the ledger with Balance = tx.Amount or increments it, then
	// appends tx. When the call creates the ledger, subscription credits are
	// recorded with type initial_credit. A repeated non-empty DedupeKey returns
	// ErrAlreadyCredited and writes nothing.
	Credit(ctx context.Context, tx Transaction) (*Ledger, error)

	// Debit subtracts -tx.Amount from the balance and adds it to UsedTotal only
	// if the balance covers it, then appends tx. Returns ErrInsufficientBalance
	// otherwise, including when the ledger does not exist.
	Debit(ctx context.Context, tx Transaction) (*Ledger, error)

	// GetLedger returns ErrLedgerNotFound if the user has never been credited.
	GetLedger(ctx context.Context, userID uuid.UUID) (*Ledger, error)

	// ListTransactions returns up to limit transactions newest first.
	// A limit <= 0 returns the whole log.
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error)

	// HasCredit reports whether a transaction matching q exists.
	HasCredit(ctx context.Context, q CreditQuery) (bool, error)
}

func (q CreditQuery) matches(tx Transaction) bool {
	if tx.UserID != q.UserID {
		return false
	}
	if q.Action != "" && tx.Action != q.Action {
		return false
	}
	if !q.Since.IsZero() && tx.CreatedAt.Before(q.Since) {
		return false
	}
	if len(q.Types) > 0 {
		t, ok := creditTypeOf(tx.Metadata)
		if !ok || !slices.Contains(q.Types, t) {
			return false
		}
	}
	return true
}
