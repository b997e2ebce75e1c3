package subscription

import "errors"

var (
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInvalidPlan              = errors.New("invalid subscription plan")
	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrReconciliationFailed     = errors.New("subscription reconciliation failed")
	ErrAlreadyOnPlan            = errors.New("subscription is already on this plan")
	ErrInvalidSubscriptionState = errors.New("invalid subscription state")
	ErrMissingUserID            = errors.New("user id is missing from subscription event")
	ErrMissingSubscriptionID    = errors.New("subscription id is required")
	ErrInvalidPurchase          = errors.New("invalid token purchase")
	ErrNoSubscriptionItems      = errors.New("subscription has no items")
	ErrGatewayNotConfigured     = errors.New("payment gateway is not configured")

	ErrProviderError              = errors.New("subscription provider error")
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
	ErrWebhookVerificationFailed  = errors.New("webhook signature verification failed")
	ErrInvalidWebhookPayload      = errors.New("invalid webhook payload")

	ErrFailedToLoadSubscription = errors.New("failed to load subscription")
	ErrFailedToSaveSubscription = errors.New("failed to save subscription")
)
