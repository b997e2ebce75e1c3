package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Action tags the cause of a balance change. Usage debits may use any
// caller-defined action.
type Action string

const (
	ActionSubscriptionCredit  Action = "subscription_credit"
	ActionSubscriptionUpgrade Action = "subscription_upgrade"
	ActionRenewalCredit       Action = "renewal_credit"
	ActionPurchaseCredit      Action = "purchase_credit"
)

// CreditType distinguishes subscription credits within a billing period.
type CreditType string

const (
	CreditTypeInitial CreditType = "initial_credit"
	CreditTypeRenewal CreditType = "renewal_credit"
	CreditTypeUpgrade CreditType = "upgrade_credit"
)

// Ledger is a user's spendable token balance and cumulative usage.
type Ledger struct {
	UserID    uuid.UUID
	Balance   int64 // never negative
	UsedTotal int64 // sum of all debits, never decreases
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is one immutable, signed balance change.
// Positive amounts are credits, negative amounts are debits.
type Transaction struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Amount    int64
	Action    Action
	Metadata  Metadata
	DedupeKey string // empty means no deduplication
	CreatedAt time.Time
}

// IsCredit reports whether the transaction increased the balance.
func (t Transaction) IsCredit() bool {
	return t.Amount > 0
}

// Snapshot is a read-only view of a ledger with its most recent transactions,
// newest first.
type Snapshot struct {
	UserID       uuid.UUID
	Balance      int64
	UsedTotal    int64
	Transactions []Transaction
}

// CreditParams describes a credit request.
type CreditParams struct {
	UserID    uuid.UUID
	Amount    int64
	Action    Action
	Metadata  Metadata
	DedupeKey string // non-empty keys are recorded once; repeats fail with ErrAlreadyCredited
}

// DebitParams describes a debit request. Amount is the positive number of
// tokens to consume.
type DebitParams struct {
	UserID   uuid.UUID
	Amount   int64
	Action   Action
	Metadata Metadata
}

// CreditQuery matches credit transactions for idempotence checks.
// Zero-valued fields do not filter.
type CreditQuery struct {
	UserID uuid.UUID
	Action Action
	Types  []CreditType // subscription metadata type, any of
	Since  time.Time    // created at or after
}
