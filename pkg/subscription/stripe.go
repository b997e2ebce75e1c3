package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Metadata keys set on provider subscriptions and checkout sessions so
// webhooks can be attributed to a user and a token package.
const (
	MetadataUserID    = "user_id"
	MetadataPackageID = "package_id"
	MetadataTokens    = "tokens"
)

// maxWebhookBodyBytes caps webhook payloads read into memory.
const maxWebhookBodyBytes = 64 << 10

// StripeConfig holds configuration for the Stripe provider.
type StripeConfig struct {
	SecretKey         string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret     string `env:"STRIPE_WEBHOOK_SECRET,required"`
	ProrationBehavior string `env:"STRIPE_PRORATION_BEHAVIOR" envDefault:"create_prorations"`
}

// StripeSubscriptionClient is the subset of the Stripe subscriptions API the
// provider needs. *subscription.Client from stripe-go satisfies it.
type StripeSubscriptionClient interface {
	Get(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	Update(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// StripeProvider implements Gateway and WebhookParser for Stripe.
type StripeProvider struct {
	subs          StripeSubscriptionClient
	webhookSecret string
	proration     string
}

// NewStripeProvider creates a Stripe provider with its own API client.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	sc := client.New(cfg.SecretKey, nil)
	return NewStripeProviderWithClient(sc.Subscriptions, cfg)
}

// NewStripeProviderWithClient creates a Stripe provider over subs.
func NewStripeProviderWithClient(subs StripeSubscriptionClient, cfg StripeConfig) (*StripeProvider, error) {
	if subs == nil {
		panic("subscription: stripe subscription client is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	proration := cfg.ProrationBehavior
	if proration == "" {
		proration = "create_prorations"
	}
	return &StripeProvider{
		subs:          subs,
		webhookSecret: cfg.WebhookSecret,
		proration:     proration,
	}, nil
}

// SwitchPrice replaces the price of the subscription's first item and clears
// any scheduled cancellation.
func (p *StripeProvider) SwitchPrice(ctx context.Context, providerSubID, priceID string) (*ProviderSubscription, error) {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx

	current, err := p.subs.Get(providerSubID, getParams)
	if err != nil {
		return nil, errors.Join(ErrProviderError, fmt.Errorf("get subscription %s: %w", providerSubID, err))
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, ErrNoSubscriptionItems
	}

	updateParams := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:    stripe.String(current.Items.Data[0].ID),
			Price: stripe.String(priceID),
		}},
		CancelAtPeriodEnd: stripe.Bool(false),
		ProrationBehavior: stripe.String(p.proration),
	}
	updateParams.Context = ctx

	updated, err := p.subs.Update(providerSubID, updateParams)
	if err != nil {
		return nil, errors.Join(ErrProviderError, fmt.Errorf("update subscription %s: %w", providerSubID, err))
	}

	return fromStripeSubscription(updated), nil
}

// ParseWebhook verifies the Stripe-Signature header and normalizes
// subscription and one-off checkout events.
func (p *StripeProvider) ParseWebhook(r *http.Request) (*Notification, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, err)
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		r.Header.Get("Stripe-Signature"),
		p.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}

	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.resumed",
		"customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrInvalidWebhookPayload, err)
		}

		ev, err := stripeEvent(string(event.Type), &sub)
		if err != nil {
			return nil, err
		}
		ev.ProviderEventID = event.ID
		return &Notification{Subscription: ev}, nil

	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, errors.Join(ErrInvalidWebhookPayload, err)
		}
		if sess.Mode != stripe.CheckoutSessionModePayment || sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return &Notification{}, nil
		}

		purchase, err := purchaseFromMetadata(sess.ID, sess.ClientReferenceID, sess.Metadata)
		if err != nil {
			return nil, err
		}
		return &Notification{Purchase: purchase}, nil
	}

	return &Notification{}, nil
}

func stripeEvent(eventType string, sub *stripe.Subscription) (*Event, error) {
	if sub.ID == "" {
		return nil, errors.Join(ErrInvalidWebhookPayload, ErrMissingSubscriptionID)
	}

	userID, err := parseOptionalUserID(sub.Metadata[MetadataUserID])
	if err != nil {
		return nil, err
	}

	ps := fromStripeSubscription(sub)
	ev := ps.event()
	ev.UserID = userID

	switch eventType {
	case "customer.subscription.created":
		ev.Type = EventSubscriptionCreated
	case "customer.subscription.deleted":
		ev.Type = EventSubscriptionEnded
	}
	return &ev, nil
}

func fromStripeSubscription(sub *stripe.Subscription) *ProviderSubscription {
	ps := &ProviderSubscription{
		ID:                sub.ID,
		Status:            ParseStatus(string(sub.Status)),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodStart > 0 {
		ps.PeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	}
	if sub.CurrentPeriodEnd > 0 {
		ps.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		ps.PriceID = sub.Items.Data[0].Price.ID
	}
	return ps
}

// purchaseFromMetadata builds a PurchaseEvent from checkout metadata. The user
// id falls back to the client reference id.
func purchaseFromMetadata(externalID, clientReference string, md map[string]string) (*PurchaseEvent, error) {
	rawUser := md[MetadataUserID]
	if rawUser == "" {
		rawUser = clientReference
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, ErrMissingUserID, err)
	}

	tokens, err := strconv.ParseInt(md[MetadataTokens], 10, 64)
	if err != nil || tokens <= 0 {
		return nil, errors.Join(ErrInvalidWebhookPayload, ErrInvalidPurchase, fmt.Errorf("tokens %q", md[MetadataTokens]))
	}

	return &PurchaseEvent{
		UserID:      userID,
		PackageID:   md[MetadataPackageID],
		TokenAmount: tokens,
		ExternalID:  externalID,
	}, nil
}

func parseOptionalUserID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Join(ErrInvalidWebhookPayload, fmt.Errorf("invalid user id %q: %w", raw, err))
	}
	return id, nil
}
