package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creditkit/pkg/logger"
)

// DefaultRecentLimit is the number of transactions returned by TokenInfo.
const DefaultRecentLimit = 10

// Service validates ledger requests and delegates the atomic work to a Store.
// It is safe for concurrent use.
type Service struct {
	store       Store
	log         *slog.Logger
	now         func() time.Time
	recentLimit int
}

// NewService creates a ledger Service. Panics if store is nil.
func NewService(store Store, opts ...Option) *Service {
	if store == nil {
		panic("ledger: store is required")
	}

	s := &Service{
		store:       store,
		log:         slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		recentLimit: DefaultRecentLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Credit adds tokens to the user's ledger, creating it on first use, and
// appends one transaction. A non-positive amount is a no-op returning (nil, nil)
// without writing anything.
func (s *Service) Credit(ctx context.Context, p CreditParams) (*Ledger, error) {
	if p.UserID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if p.Action == "" {
		return nil, ErrInvalidAction
	}
	if p.Amount <= 0 {
		return nil, nil
	}

	tx := s.newTransaction(p.UserID, p.Amount, p.Action, p.Metadata)
	tx.DedupeKey = p.DedupeKey

	l, err := retryOnConflict(func() (*Ledger, error) { return s.store.Credit(ctx, tx) })
	if err != nil {
		return nil, err
	}

	s.log.DebugContext(ctx, "tokens credited",
		logger.UserID(p.UserID),
		logger.Action(string(p.Action)),
		logger.Amount(p.Amount),
		slog.Int64("balance", l.Balance),
	)
	return l, nil
}

// Debit consumes tokens. The balance check and the decrement are one atomic
// store operation; a shortfall returns ErrInsufficientBalance and writes nothing.
func (s *Service) Debit(ctx context.Context, p DebitParams) (*Ledger, error) {
	if p.UserID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if p.Action == "" {
		return nil, ErrInvalidAction
	}
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx := s.newTransaction(p.UserID, -p.Amount, p.Action, p.Metadata)

	l, err := retryOnConflict(func() (*Ledger, error) { return s.store.Debit(ctx, tx) })
	if err != nil {
		return nil, err
	}

	s.log.DebugContext(ctx, "tokens debited",
		logger.UserID(p.UserID),
		logger.Action(string(p.Action)),
		logger.Amount(p.Amount),
		slog.Int64("balance", l.Balance),
	)
	return l, nil
}

// Snapshot returns the ledger with its recentLimit newest transactions.
// A user without a ledger gets a zero snapshot, not an error.
func (s *Service) Snapshot(ctx context.Context, userID uuid.UUID, recentLimit int) (*Snapshot, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}

	snap := &Snapshot{UserID: userID, Transactions: []Transaction{}}

	l, err := s.store.GetLedger(ctx, userID)
	switch {
	case errors.Is(err, ErrLedgerNotFound):
		return snap, nil
	case err != nil:
		return nil, err
	}
	snap.Balance = l.Balance
	snap.UsedTotal = l.UsedTotal

	if recentLimit > 0 {
		txs, err := s.store.ListTransactions(ctx, userID, recentLimit)
		if err != nil {
			return nil, err
		}
		if txs != nil {
			snap.Transactions = txs
		}
	}

	return snap, nil
}

// TokenInfo is Snapshot with the configured recent limit.
func (s *Service) TokenInfo(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	return s.Snapshot(ctx, userID, s.recentLimit)
}

// HasCredit reports whether a credit matching q was already recorded.
func (s *Service) HasCredit(ctx context.Context, q CreditQuery) (bool, error) {
	if q.UserID == uuid.Nil {
		return false, ErrInvalidUserID
	}
	return s.store.HasCredit(ctx, q)
}

// Audit recomputes the user's totals from the full transaction log and
// returns ErrLedgerOutOfBalance if they differ from the stored ledger.
func (s *Service) Audit(ctx context.Context, userID uuid.UUID) error {
	l, err := s.store.GetLedger(ctx, userID)
	if errors.Is(err, ErrLedgerNotFound) {
		l = &Ledger{UserID: userID}
	} else if err != nil {
		return err
	}

	txs, err := s.store.ListTransactions(ctx, userID, 0)
	if err != nil {
		return err
	}

	var credits, debits int64
	for _, tx := range txs {
		if tx.Amount > 0 {
			credits += tx.Amount
		} else {
			debits -= tx.Amount
		}
	}

	if l.Balance != credits-debits || l.UsedTotal != debits {
		return errors.Join(ErrLedgerOutOfBalance, fmt.Errorf(
			"ledger balance=%d used=%d, log balance=%d used=%d",
			l.Balance, l.UsedTotal, credits-debits, debits,
		))
	}
	return nil
}

func (s *Service) newTransaction(userID uuid.UUID, amount int64, action Action, meta Metadata) Transaction {
	return Transaction{
		ID:        newTransactionID(),
		UserID:    userID,
		Amount:    amount,
		Action:    action,
		Metadata:  meta,
		CreatedAt: s.now(),
	}
}

// newTransactionID returns a time-ordered UUIDv7, falling back to v4.
func newTransactionID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}

// retryOnConflict runs fn and repeats it once if it lost a race.
func retryOnConflict(fn func() (*Ledger, error)) (*Ledger, error) {
	l, err := fn()
	if errors.Is(err, ErrConflict) {
		l, err = fn()
	}
	return l, err
}
