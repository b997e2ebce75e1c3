package ledger

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store guarded by a single mutex.
// Suitable for tests and single-instance deployments without a database.
type MemoryStore struct {
	mu      sync.Mutex
	ledgers map[uuid.UUID]*Ledger
	txs     map[uuid.UUID][]Transaction // append order
	keys    map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ledgers: make(map[uuid.UUID]*Ledger),
		txs:     make(map[uuid.UUID][]Transaction),
		keys:    make(map[string]struct{}),
	}
}

func (s *MemoryStore) Credit(ctx context.Context, tx Transaction) (*Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.DedupeKey != "" {
		if _, dup := s.keys[tx.DedupeKey]; dup {
			return nil, ErrAlreadyCredited
		}
	}

	l, exists := s.ledgers[tx.UserID]
	if !exists {
		l = &Ledger{UserID: tx.UserID, CreatedAt: tx.CreatedAt}
		s.ledgers[tx.UserID] = l
	}
	resolveFirstCredit(&tx, !exists)

	l.Balance += tx.Amount
	l.UpdatedAt = tx.CreatedAt
	s.append(tx)

	cp := *l
	return &cp, nil
}

func (s *MemoryStore) Debit(ctx context.Context, tx Transaction) (*Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	amount := -tx.Amount
	l, ok := s.ledgers[tx.UserID]
	if !ok || l.Balance < amount {
		return nil, ErrInsufficientBalance
	}

	l.Balance -= amount
	l.UsedTotal += amount
	l.UpdatedAt = tx.CreatedAt
	s.append(tx)

	cp := *l
	return &cp, nil
}

func (s *MemoryStore) append(tx Transaction) {
	s.txs[tx.UserID] = append(s.txs[tx.UserID], tx)
	if tx.DedupeKey != "" {
		s.keys[tx.DedupeKey] = struct{}{}
	}
}

func (s *MemoryStore) GetLedger(ctx context.Context, userID uuid.UUID) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.ledgers[userID]
	if !ok {
		return nil, ErrLedgerNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.txs[userID]
	n := len(all)
	if limit > 0 {
		n = min(n, limit)
	}

	out := make([]Transaction, 0, n)
	for _, tx := range slices.Backward(all) {
		if len(out) == n {
			break
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *MemoryStore) HasCredit(ctx context.Context, q CreditQuery) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range s.txs[q.UserID] {
		if tx.IsCredit() && q.matches(tx) {
			return true, nil
		}
	}
	return false, nil
}
