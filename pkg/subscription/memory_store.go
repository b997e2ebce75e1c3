package subscription

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps subscription mirrors in a map keyed by provider id.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]Subscription)}
}

func (s *MemoryStore) GetByProviderID(ctx context.Context, providerSubID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[providerSubID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Subscription
	for _, sub := range s.subs {
		if sub.UserID != userID || !sub.IsEntitled() {
			continue
		}
		if found == nil || sub.PeriodStart.After(found.PeriodStart) {
			found = &sub
		}
	}
	if found == nil {
		return nil, ErrSubscriptionNotFound
	}
	return found, nil
}

func (s *MemoryStore) Save(ctx context.Context, sub *Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sub == nil || sub.ProviderSubID == "" {
		return ErrMissingSubscriptionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sub
	if prev, ok := s.subs[sub.ProviderSubID]; ok {
		cp.ID = prev.ID
		cp.CreatedAt = prev.CreatedAt
	}
	s.subs[sub.ProviderSubID] = cp
	return nil
}

func (s *MemoryStore) ListRenewed(ctx context.Context, from, to time.Time) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, sub := range s.subs {
		if sub.IsActive() && !sub.PeriodStart.Before(from) && !sub.PeriodStart.After(to) {
			out = append(out, sub)
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int {
		return cmp.Or(a.PeriodStart.Compare(b.PeriodStart), cmp.Compare(a.ProviderSubID, b.ProviderSubID))
	})
	return out, nil
}
