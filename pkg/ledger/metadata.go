package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MetadataKind is the discriminator stored alongside the metadata payload.
type MetadataKind string

const (
	KindSubscription MetadataKind = "subscription"
	KindPurchase     MetadataKind = "purchase"
	KindUsage        MetadataKind = "usage"
)

// Metadata is the typed payload attached to a transaction. The concrete type
// is one of SubscriptionMetadata, PurchaseMetadata or UsageMetadata.
type Metadata interface {
	Kind() MetadataKind
}

// SubscriptionMetadata accompanies subscription, upgrade and renewal credits.
type SubscriptionMetadata struct {
	PlanName       string     `json:"plan_name"`
	Type           CreditType `json:"type"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	PeriodStart    time.Time  `json:"period_start,omitzero"`
}

func (SubscriptionMetadata) Kind() MetadataKind { return KindSubscription }

// PurchaseMetadata accompanies one-off package purchases.
type PurchaseMetadata struct {
	PackageID  string `json:"package_id"`
	ExternalID string `json:"external_id,omitempty"`
}

func (PurchaseMetadata) Kind() MetadataKind { return KindPurchase }

// UsageMetadata accompanies debits for feature usage.
type UsageMetadata struct {
	Feature   string `json:"feature,omitempty"`
	Reference string `json:"reference,omitempty"`
}

func (UsageMetadata) Kind() MetadataKind { return KindUsage }

// creditTypeOf returns the subscription credit type of m, if any.
func creditTypeOf(m Metadata) (CreditType, bool) {
	switch v := m.(type) {
	case SubscriptionMetadata:
		return v.Type, true
	case *SubscriptionMetadata:
		if v != nil {
			return v.Type, true
		}
	}
	return "", false
}

// resolveFirstCredit marks a subscription credit as the initial credit when it
// created the ledger row.
func resolveFirstCredit(tx *Transaction, created bool) {
	if !created || tx.Action != ActionSubscriptionCredit {
		return
	}
	switch v := tx.Metadata.(type) {
	case SubscriptionMetadata:
		v.Type = CreditTypeInitial
		tx.Metadata = v
	case *SubscriptionMetadata:
		if v != nil {
			cp := *v
			cp.Type = CreditTypeInitial
			tx.Metadata = cp
		}
	}
}

// MarshalMetadata encodes m as a flat JSON object with a "kind" field.
// A nil Metadata encodes to nil.
func MarshalMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}

	body, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Join(ErrFailedToEncodeMeta, err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, errors.Join(ErrFailedToEncodeMeta, err)
	}
	kind, _ := json.Marshal(m.Kind())
	fields["kind"] = kind

	return json.Marshal(fields)
}

// UnmarshalMetadata decodes data produced by MarshalMetadata.
// Empty input and JSON null decode to nil.
func UnmarshalMetadata(data []byte) (Metadata, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var head struct {
		Kind MetadataKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errors.Join(ErrFailedToDecodeMeta, err)
	}

	var (
		m   Metadata
		err error
	)
	switch head.Kind {
	case KindSubscription:
		var v SubscriptionMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case KindPurchase:
		var v PurchaseMetadata
		err = json.Unmarshal(data, &v)
		m = v
	case KindUsage:
		var v UsageMetadata
		err = json.Unmarshal(data, &v)
		m = v
	default:
		return nil, errors.Join(ErrUnknownMetadataKind, fmt.Errorf("kind %q", head.Kind))
	}
	if err != nil {
		return nil, errors.Join(ErrFailedToDecodeMeta, err)
	}

	return m, nil
}
