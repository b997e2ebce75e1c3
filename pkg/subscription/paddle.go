package subscription

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle webhook parser.
type PaddleConfig struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
}

// PaddleVerifier checks the Paddle-Signature header of a webhook request.
// *paddle.WebhookVerifier satisfies it.
type PaddleVerifier interface {
	Verify(req *http.Request) (bool, error)
}

// PaddleProvider implements WebhookParser for Paddle Billing.
type PaddleProvider struct {
	verifier PaddleVerifier
}

// NewPaddleProvider creates a Paddle webhook parser using the SDK verifier.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	return NewPaddleProviderWithVerifier(paddle.NewWebhookVerifier(cfg.WebhookSecret)), nil
}

// NewPaddleProviderWithVerifier creates a Paddle webhook parser over v.
func NewPaddleProviderWithVerifier(v PaddleVerifier) *PaddleProvider {
	if v == nil {
		panic("subscription: paddle verifier is required")
	}
	return &PaddleProvider{verifier: v}
}

// ParseWebhook verifies the request signature and normalizes subscription and
// one-off transaction events.
func (p *PaddleProvider) ParseWebhook(r *http.Request) (*Notification, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, err)
	}
	// the verifier reads the body again
	r.Body = io.NopCloser(bytes.NewReader(body))

	valid, err := p.verifier.Verify(r)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	var payload struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, err)
	}

	switch {
	case strings.HasPrefix(payload.EventType, "subscription."):
		ev, err := paddleSubscriptionEvent(payload.EventType, payload.Data)
		if err != nil || ev == nil {
			return &Notification{}, err
		}
		ev.ProviderEventID = payload.EventID
		return &Notification{Subscription: ev}, nil

	case payload.EventType == "transaction.completed":
		// subscription transactions are handled through subscription events
		if sid, _ := payload.Data["subscription_id"].(string); sid != "" {
			return &Notification{}, nil
		}
		custom := stringMap(payload.Data["custom_data"])
		if custom[MetadataPackageID] == "" {
			return &Notification{}, nil
		}
		txnID, _ := payload.Data["id"].(string)
		purchase, err := purchaseFromMetadata(txnID, "", custom)
		if err != nil {
			return nil, err
		}
		return &Notification{Purchase: purchase}, nil
	}

	return &Notification{}, nil
}

func paddleSubscriptionEvent(eventType string, data map[string]any) (*Event, error) {
	ev := &Event{Type: EventSubscriptionUpdated}
	switch eventType {
	case "subscription.created", "subscription.activated":
		ev.Type = EventSubscriptionCreated
	case "subscription.canceled":
		ev.Type = EventSubscriptionEnded
	case "subscription.updated", "subscription.resumed", "subscription.past_due", "subscription.paused":
	default:
		return nil, nil
	}

	ev.SubscriptionID, _ = data["id"].(string)
	if ev.SubscriptionID == "" {
		return nil, errors.Join(ErrInvalidWebhookPayload, ErrMissingSubscriptionID)
	}

	status, _ := data["status"].(string)
	ev.Status = ParseStatus(status)

	userID, err := parseOptionalUserID(stringMap(data["custom_data"])[MetadataUserID])
	if err != nil {
		return nil, err
	}
	ev.UserID = userID

	if items, ok := data["items"].([]any); ok && len(items) > 0 {
		if item, ok := items[0].(map[string]any); ok {
			if price, ok := item["price"].(map[string]any); ok {
				ev.PriceID, _ = price["id"].(string)
			}
		}
	}

	if period, ok := data["current_billing_period"].(map[string]any); ok {
		if ev.PeriodStart, err = parsePaddleTime(period["starts_at"]); err != nil {
			return nil, err
		}
		if ev.PeriodEnd, err = parsePaddleTime(period["ends_at"]); err != nil {
			return nil, err
		}
	}

	if change, ok := data["scheduled_change"].(map[string]any); ok {
		action, _ := change["action"].(string)
		ev.CancelAtPeriodEnd = action == "cancel"
	}

	return ev, nil
}

func parsePaddleTime(v any) (time.Time, error) {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Join(ErrInvalidWebhookPayload, fmt.Errorf("invalid timestamp %q: %w", s, err))
	}
	return t.UTC(), nil
}

// stringMap flattens a JSON object into string values. Numbers are formatted
// without exponent so token counts survive.
func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		switch x := val.(type) {
		case string:
			out[k] = x
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		}
	}
	return out
}
