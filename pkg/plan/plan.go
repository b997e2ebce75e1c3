package plan

import "slices"

// Plan is a named tier with a monthly token entitlement.
// PriceID must match the payment provider's price identifier so webhook
// payloads and plan switches can be mapped back to a plan.
type Plan struct {
	Name        string    `yaml:"name" validate:"required"`
	PriceID     string    `yaml:"price_id" validate:"required"`
	Limits      Limits    `yaml:"limits"`
	Price       Money     `yaml:"price"`
	Features    []Feature `yaml:"features"`
	Description string    `yaml:"description"`
}

// Limits holds the per-period entitlements of a plan.
type Limits struct {
	Tokens int64 `yaml:"tokens" validate:"gte=0"` // granted on subscription start and every renewal
}

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `yaml:"amount" validate:"gte=0"`
	Currency string `yaml:"currency" validate:"omitempty,len=3,uppercase"` // ISO 4217 currency code
}

// Feature is a capability advertised by a plan.
type Feature string

// Tokens returns the token entitlement of the plan.
func (p Plan) Tokens() int64 {
	return p.Limits.Tokens
}

// HasFeature reports whether the plan includes feature f.
func (p Plan) HasFeature(f Feature) bool {
	return slices.Contains(p.Features, f)
}

func (p Plan) clone() Plan {
	p.Features = slices.Clone(p.Features)
	return p
}
