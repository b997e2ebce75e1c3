// Package subscription reconciles payment-provider subscriptions with the
// token ledger.
//
// The Reconciler owns a local mirror of each provider subscription and turns
// lifecycle transitions into ledger credits:
//
//   - New subscription: mirror created, plan tokens credited. The very first
//     credit a user ever receives is recorded as initial_credit, later ones as
//     renewal_credit.
//   - Plan change: the positive token difference between the new and the old
//     plan is credited as upgrade_credit; downgrades credit nothing.
//   - Resume: a subscription scheduled for cancellation is reactivated without
//     any credit, the period was already paid for.
//   - Cancellation scheduled, subscription ended, period refreshed: mirror only.
//   - Renewal: CreditRenewal, driven by the renewal sweep, credits the plan once
//     per billing period.
//
// Every transition runs inside Transactor.WithinTx so the mirror update and the
// ledger write commit together. With pg.Transactor both stores share one pgx
// transaction; with in-memory stores NopTransactor is enough.
//
// Period credits carry a dedupe key built by PeriodCreditKey. Webhook
// redeliveries, a sweep that runs twice and a sweep racing a webhook all end in
// a single credit per period.
//
// # Providers
//
// StripeProvider verifies webhooks with stripe-go's webhook package and
// switches prices through the subscriptions API. PaddleProvider verifies
// webhooks with paddle-go-sdk. Both produce a Notification holding either a
// normalized Event or a PurchaseEvent for one-off token packages. Provider
// subscriptions and checkouts must carry the user id in metadata (custom_data
// on Paddle) under MetadataUserID.
//
// # Usage
//
//	rec := subscription.NewReconciler(
//		ledgerService,
//		catalog,
//		subscription.NewPostgresStore(pool),
//		subscription.WithTransactor(pg.NewTransactor(pool)),
//		subscription.WithGateway(stripeProvider),
//		subscription.WithLogger(log),
//	)
//
//	n, err := stripeProvider.ParseWebhook(r)
//	if err != nil {
//		return err
//	}
//	if n.Subscription != nil {
//		err = rec.HandleEvent(ctx, *n.Subscription)
//	}
//
// # Errors
//
// Domain failures are returned as sentinels: ErrInvalidPlan,
// ErrSubscriptionNotFound, ErrUnauthorized. Any other failure inside a
// transition is wrapped in ErrReconciliationFailed and nothing is written.
// ledger.ErrAlreadyCredited is informational. UpdateExistingSubscription never
// returns an error; it reports a Result with a short user-facing message.
package subscription
