package subscription

import (
	"context"
	"net/http"
	"time"
)

// Gateway performs subscription changes at the payment provider.
type Gateway interface {
	// SwitchPrice moves the subscription's first item to priceID and clears a
	// scheduled cancellation. Returns ErrNoSubscriptionItems if the
	// subscription has no items.
	SwitchPrice(ctx context.Context, providerSubID, priceID string) (*ProviderSubscription, error)
}

// WebhookParser verifies and normalizes provider webhooks.
type WebhookParser interface {
	ParseWebhook(r *http.Request) (*Notification, error)
}

// ProviderSubscription is the provider's view of a subscription after a change.
type ProviderSubscription struct {
	ID                string
	PriceID           string
	Status            Status
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

func (p *ProviderSubscription) event() Event {
	return Event{
		Type:              EventSubscriptionUpdated,
		SubscriptionID:    p.ID,
		PriceID:           p.PriceID,
		Status:            p.Status,
		PeriodStart:       p.PeriodStart,
		PeriodEnd:         p.PeriodEnd,
		CancelAtPeriodEnd: p.CancelAtPeriodEnd,
	}
}
