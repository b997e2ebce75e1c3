package subscription

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the normalized subscription lifecycle event.
type EventType string

const (
	EventSubscriptionCreated EventType = "subscription_created"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionEnded   EventType = "subscription_ended"
)

// Event is a provider-agnostic subscription lifecycle notification.
// Signature verification happens before an Event is built.
type Event struct {
	Type              EventType
	ProviderEventID   string
	SubscriptionID    string    // provider subscription id
	UserID            uuid.UUID // owner; may be zero for updates of known subscriptions
	PriceID           string
	Status            Status
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

// PurchaseEvent is a completed one-off token package purchase.
type PurchaseEvent struct {
	UserID      uuid.UUID
	PackageID   string
	TokenAmount int64
	ExternalID  string // provider payment id, deduplicates redeliveries
}

// Notification is a parsed webhook. At most one field is set; both nil means
// the provider event is not relevant to the ledger.
type Notification struct {
	Subscription *Event
	Purchase     *PurchaseEvent
}

// Result is the outcome of a user-facing billing action.
type Result struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}
