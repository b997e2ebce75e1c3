package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists subscription mirrors.
type Store interface {
	// GetByProviderID returns ErrSubscriptionNotFound if no mirror exists.
	// Inside a transaction the row stays locked until commit.
	GetByProviderID(ctx context.Context, providerSubID string) (*Subscription, error)

	// GetActiveByUser returns the user's most recent entitled (active or
	// trialing) subscription, or ErrSubscriptionNotFound.
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Save inserts or updates the mirror keyed by ProviderSubID.
	Save(ctx context.Context, sub *Subscription) error

	// ListRenewed returns active subscriptions whose period started in [from, to].
	ListRenewed(ctx context.Context, from, to time.Time) ([]Subscription, error)
}

// Transactor runs fn so that all store and ledger writes made with the
// passed context commit or roll back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTransactor calls fn directly. Use it with in-memory stores, whose
// individual calls are already atomic.
type NopTransactor struct{}

func (NopTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
