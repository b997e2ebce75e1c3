package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status mirrors the payment provider's subscription status.
type Status string

const (
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusPaused     Status = "paused"
	StatusIncomplete Status = "incomplete"
	StatusUnpaid     Status = "unpaid"
	StatusCanceled   Status = "canceled"
)

// Subscription is the local mirror of a provider subscription.
// Rows are never deleted; cancellation is CancelAtPeriodEnd or StatusCanceled.
type Subscription struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	ProviderSubID     string // unique
	Plan              string // plan name
	PriceID           string
	Status            Status
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsActive reports whether the subscription is paid and current.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsEntitled reports whether the subscription grants plan tokens.
func (s *Subscription) IsEntitled() bool {
	return s.Status.entitled()
}

func (st Status) entitled() bool {
	return st == StatusActive || st == StatusTrialing
}

// ParseStatus normalizes provider status strings.
func ParseStatus(s string) Status {
	switch s {
	case "cancelled":
		return StatusCanceled
	case "incomplete_expired":
		return StatusCanceled
	default:
		return Status(s)
	}
}
