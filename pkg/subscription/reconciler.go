package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creditkit/pkg/ledger"
	"github.com/dmitrymomot/creditkit/pkg/logger"
	"github.com/dmitrymomot/creditkit/pkg/plan"
)

// Ledger is the part of the token ledger the reconciler writes to.
type Ledger interface {
	Credit(ctx context.Context, p ledger.CreditParams) (*ledger.Ledger, error)
	HasCredit(ctx context.Context, q ledger.CreditQuery) (bool, error)
}

// Catalog resolves plans by name and provider price id.
type Catalog interface {
	FindByName(name string) (plan.Plan, bool)
	FindByPriceID(priceID string) (plan.Plan, bool)
}

// Reconciler translates subscription lifecycle transitions into ledger credits
// and subscription mirror updates. It is the only writer of the mirror.
type Reconciler struct {
	ledger  Ledger
	plans   Catalog
	store   Store
	gateway Gateway
	tx      Transactor
	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewReconciler creates a Reconciler. Panics if a required dependency is nil.
func NewReconciler(l Ledger, plans Catalog, store Store, opts ...Option) *Reconciler {
	if l == nil {
		panic("subscription: ledger is required")
	}
	if plans == nil {
		panic("subscription: plan catalog is required")
	}
	if store == nil {
		panic("subscription: store is required")
	}

	r := &Reconciler{
		ledger:  l,
		plans:   plans,
		store:   store,
		tx:      NopTransactor{},
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
		timeout: DefaultOperationTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("subscription"))

	return r
}

// HandleEvent applies a verified lifecycle event.
//
// An unknown subscription is created and credited with the plan's tokens. A
// known one is resumed, switched to another plan, activated, flagged for
// cancellation, ended, or has its period refreshed, depending on how the event
// differs from the mirror. Each transition is one unit of work.
func (r *Reconciler) HandleEvent(ctx context.Context, ev Event) error {
	if ev.SubscriptionID == "" {
		return ErrMissingSubscriptionID
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var target plan.Plan
	if ev.Type != EventSubscriptionEnded {
		p, ok := r.plans.FindByPriceID(ev.PriceID)
		if !ok {
			return errors.Join(ErrInvalidPlan, fmt.Errorf("unknown price id %q", ev.PriceID))
		}
		target = p
	}

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := r.store.GetByProviderID(ctx, ev.SubscriptionID)
		switch {
		case errors.Is(err, ErrSubscriptionNotFound):
			if ev.Type == EventSubscriptionEnded {
				return err
			}
			return r.subscribe(ctx, ev, target)
		case err != nil:
			return err
		}

		if ev.UserID != uuid.Nil && ev.UserID != current.UserID {
			return errors.Join(ErrUnauthorized, fmt.Errorf("subscription %s belongs to another user", ev.SubscriptionID))
		}
		if ev.Type == EventSubscriptionEnded {
			return r.end(ctx, current)
		}
		return r.apply(ctx, current, ev, target)
	})

	return r.result(ctx, "handle event", err, logger.EventType(string(ev.Type)), logger.SubscriptionID(ev.SubscriptionID))
}

// apply dispatches an update for an existing mirror.
func (r *Reconciler) apply(ctx context.Context, current *Subscription, ev Event, target plan.Plan) error {
	switch {
	case current.CancelAtPeriodEnd && !ev.CancelAtPeriodEnd:
		return r.resume(ctx, current, ev, target)
	case current.PriceID != target.PriceID:
		return r.changePlan(ctx, current, ev, target)
	case !current.IsEntitled() && ev.Status.entitled():
		return r.activate(ctx, current, ev, target)
	default:
		// cancellation scheduling and period refreshes touch only the mirror
		return r.store.Save(ctx, r.refresh(current, ev, target, ev.CancelAtPeriodEnd))
	}
}

// subscribe creates the mirror for a new subscription and grants the plan's
// tokens for the current period.
func (r *Reconciler) subscribe(ctx context.Context, ev Event, p plan.Plan) error {
	if ev.UserID == uuid.Nil {
		return ErrMissingUserID
	}

	now := r.now()
	sub := &Subscription{
		ID:            uuid.New(),
		UserID:        ev.UserID,
		ProviderSubID: ev.SubscriptionID,
		CreatedAt:     now,
	}
	sub = r.refresh(sub, ev, p, ev.CancelAtPeriodEnd)

	// Credit before saving: once the mirror exists a redelivered event is only
	// a refresh. Replaying a credit whose save failed hits PeriodCreditKey.
	if sub.IsEntitled() {
		if err := r.creditPeriod(ctx, sub, p); err != nil {
			return err
		}
	}
	return r.store.Save(ctx, sub)
}

// activate grants the period's tokens to a subscription that became entitled,
// e.g. once an incomplete first payment succeeds.
func (r *Reconciler) activate(ctx context.Context, current *Subscription, ev Event, p plan.Plan) error {
	sub := r.refresh(current, ev, p, ev.CancelAtPeriodEnd)
	if err := r.creditPeriod(ctx, sub, p); err != nil {
		return err
	}
	return r.store.Save(ctx, sub)
}

// creditPeriod grants the plan entitlement once per subscription period.
func (r *Reconciler) creditPeriod(ctx context.Context, sub *Subscription, p plan.Plan) error {
	_, err := r.ledger.Credit(ctx, ledger.CreditParams{
		UserID: sub.UserID,
		Amount: p.Tokens(),
		Action: ledger.ActionSubscriptionCredit,
		Metadata: ledger.SubscriptionMetadata{
			PlanName:       p.Name,
			Type:           ledger.CreditTypeRenewal,
			SubscriptionID: sub.ProviderSubID,
			PeriodStart:    sub.PeriodStart,
		},
		DedupeKey: PeriodCreditKey(sub.UserID, sub.ProviderSubID, sub.PeriodStart),
	})
	if errors.Is(err, ledger.ErrAlreadyCredited) {
		return nil
	}
	return err
}

// changePlan switches the mirror to another plan and credits the positive
// token difference. Downgrades credit nothing.
func (r *Reconciler) changePlan(ctx context.Context, current *Subscription, ev Event, p plan.Plan) error {
	from, ok := r.plans.FindByName(current.Plan)
	if !ok {
		return errors.Join(ErrInvalidPlan, fmt.Errorf("current plan %q is not in the catalog", current.Plan))
	}

	sub := r.refresh(current, ev, p, false)

	delta := p.Tokens() - from.Tokens()
	if delta > 0 && sub.IsEntitled() {
		_, err := r.ledger.Credit(ctx, ledger.CreditParams{
			UserID: sub.UserID,
			Amount: delta,
			Action: ledger.ActionSubscriptionUpgrade,
			Metadata: ledger.SubscriptionMetadata{
				PlanName:       p.Name,
				Type:           ledger.CreditTypeUpgrade,
				SubscriptionID: sub.ProviderSubID,
				PeriodStart:    sub.PeriodStart,
			},
			DedupeKey: UpgradeCreditKey(current, p.PriceID),
		})
		if err != nil && !errors.Is(err, ledger.ErrAlreadyCredited) {
			return err
		}
	}
	return r.store.Save(ctx, sub)
}

// resume clears a scheduled cancellation. Tokens for the period were already
// granted, so nothing is credited.
func (r *Reconciler) resume(ctx context.Context, current *Subscription, ev Event, p plan.Plan) error {
	return r.store.Save(ctx, r.refresh(current, ev, p, false))
}

// end marks the subscription as canceled.
func (r *Reconciler) end(ctx context.Context, current *Subscription) error {
	sub := *current
	sub.Status = StatusCanceled
	sub.UpdatedAt = r.now()
	return r.store.Save(ctx, &sub)
}

// refresh returns a copy of sub with plan, status and period taken from ev.
func (r *Reconciler) refresh(sub *Subscription, ev Event, p plan.Plan, cancelAtPeriodEnd bool) *Subscription {
	out := *sub
	out.Plan = p.Name
	out.PriceID = p.PriceID
	out.Status = ev.Status
	if !ev.PeriodStart.IsZero() {
		out.PeriodStart = ev.PeriodStart
	}
	if !ev.PeriodEnd.IsZero() {
		out.PeriodEnd = ev.PeriodEnd
	}
	out.CancelAtPeriodEnd = cancelAtPeriodEnd
	out.UpdatedAt = r.now()
	return &out
}

// CreditRenewal grants the plan's tokens for the subscription's current period.
// It returns ledger.ErrAlreadyCredited if the owning user already received the
// period credit, whether from an earlier sweep or from the subscription start.
func (r *Reconciler) CreditRenewal(ctx context.Context, sub Subscription) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := func() error {
		if !sub.IsActive() {
			return errors.Join(ErrInvalidSubscriptionState, fmt.Errorf("status %q", sub.Status))
		}
		p, ok := r.plans.FindByName(sub.Plan)
		if !ok {
			return errors.Join(ErrInvalidPlan, fmt.Errorf("unknown plan %q", sub.Plan))
		}

		credited, err := r.ledger.HasCredit(ctx, ledger.CreditQuery{
			UserID: sub.UserID,
			Action: ledger.ActionSubscriptionCredit,
			Types:  []ledger.CreditType{ledger.CreditTypeRenewal, ledger.CreditTypeInitial},
			Since:  sub.PeriodStart,
		})
		if err != nil {
			return err
		}
		if credited {
			return ledger.ErrAlreadyCredited
		}

		_, err = r.ledger.Credit(ctx, ledger.CreditParams{
			UserID: sub.UserID,
			Amount: p.Tokens(),
			Action: ledger.ActionSubscriptionCredit,
			Metadata: ledger.SubscriptionMetadata{
				PlanName:       p.Name,
				Type:           ledger.CreditTypeRenewal,
				SubscriptionID: sub.ProviderSubID,
				PeriodStart:    sub.PeriodStart,
			},
			DedupeKey: PeriodCreditKey(sub.UserID, sub.ProviderSubID, sub.PeriodStart),
		})
		return err
	}()

	return r.result(ctx, "credit renewal", err, logger.UserID(sub.UserID), logger.SubscriptionID(sub.ProviderSubID))
}

// CreditPurchase credits a one-off token package. Redelivered purchases with
// the same ExternalID return ledger.ErrAlreadyCredited.
func (r *Reconciler) CreditPurchase(ctx context.Context, ev PurchaseEvent) error {
	switch {
	case ev.UserID == uuid.Nil:
		return ErrMissingUserID
	case ev.PackageID == "":
		return errors.Join(ErrInvalidPurchase, errors.New("package id is required"))
	case ev.TokenAmount <= 0:
		return errors.Join(ErrInvalidPurchase, ledger.ErrInvalidAmount)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var key string
	if ev.ExternalID != "" {
		key = "purchase:" + ev.ExternalID
	}

	_, err := r.ledger.Credit(ctx, ledger.CreditParams{
		UserID:    ev.UserID,
		Amount:    ev.TokenAmount,
		Action:    ledger.ActionPurchaseCredit,
		Metadata:  ledger.PurchaseMetadata{PackageID: ev.PackageID, ExternalID: ev.ExternalID},
		DedupeKey: key,
	})

	return r.result(ctx, "credit purchase", err, logger.UserID(ev.UserID), logger.Amount(ev.TokenAmount))
}

// UpdateExistingSubscription switches the user's subscription to newPriceID at
// the provider and mirrors the change locally. A subscription scheduled for
// cancellation is resumed instead of upgraded. Failures are reported in the
// Result, never as an error.
func (r *Reconciler) UpdateExistingSubscription(ctx context.Context, userID uuid.UUID, providerSubID, newPriceID string) Result {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	target, resumed, err := r.updateExisting(ctx, userID, providerSubID, newPriceID)
	if err != nil {
		err = r.result(ctx, "update subscription", err, logger.UserID(userID), logger.SubscriptionID(providerSubID))
		return Result{Status: false, Message: userMessage(err)}
	}

	if resumed {
		return Result{Status: true, Message: "Your subscription has been resumed."}
	}
	return Result{Status: true, Message: fmt.Sprintf("Your subscription has been switched to the %s plan.", target.Name)}
}

func (r *Reconciler) updateExisting(ctx context.Context, userID uuid.UUID, providerSubID, newPriceID string) (plan.Plan, bool, error) {
	if userID == uuid.Nil {
		return plan.Plan{}, false, ErrUnauthorized
	}
	target, ok := r.plans.FindByPriceID(newPriceID)
	if !ok {
		return plan.Plan{}, false, errors.Join(ErrInvalidPlan, fmt.Errorf("unknown price id %q", newPriceID))
	}

	current, err := r.store.GetByProviderID(ctx, providerSubID)
	if err != nil {
		return plan.Plan{}, false, err
	}
	if current.UserID != userID {
		return plan.Plan{}, false, ErrUnauthorized
	}
	resuming := current.CancelAtPeriodEnd
	if !resuming && current.PriceID == newPriceID {
		return plan.Plan{}, false, ErrAlreadyOnPlan
	}
	if r.gateway == nil {
		return plan.Plan{}, false, ErrGatewayNotConfigured
	}

	// The provider call stays outside the database transaction. If the local
	// update fails, the provider's own update webhook reconciles the mirror.
	ps, err := r.gateway.SwitchPrice(ctx, providerSubID, newPriceID)
	if err != nil {
		return plan.Plan{}, false, err
	}

	ev := ps.event()
	ev.UserID = userID
	if ev.PriceID == "" {
		ev.PriceID = newPriceID
	}

	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := r.store.GetByProviderID(ctx, providerSubID)
		if err != nil {
			return err
		}
		if current.CancelAtPeriodEnd {
			return r.resume(ctx, current, ev, target)
		}
		if current.PriceID == target.PriceID {
			return r.store.Save(ctx, r.refresh(current, ev, target, false))
		}
		return r.changePlan(ctx, current, ev, target)
	})
	return target, resuming, err
}

// GetActiveSubscription returns the user's entitled subscription or nil.
func (r *Reconciler) GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	if userID == uuid.Nil {
		return nil, ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sub, err := r.store.GetActiveByUser(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadSubscription, err)
	}
	return sub, nil
}

// PeriodCreditKey identifies the entitlement credit of one billing period.
// New-subscription and renewal credits share it, so a period is paid once
// however many webhooks or sweeps observe it.
func PeriodCreditKey(userID uuid.UUID, providerSubID string, periodStart time.Time) string {
	return fmt.Sprintf("period:%s:%s:%d", userID, providerSubID, periodStart.Unix())
}

// UpgradeCreditKey identifies the upgrade credit of one plan change. It is
// derived from the mirror state being left, so a replayed change is credited
// once while a later change back to the same plan gets a fresh key.
func UpgradeCreditKey(from *Subscription, toPriceID string) string {
	return fmt.Sprintf("upgrade:%s:%s:%s:%s:%d",
		from.UserID, from.ProviderSubID, from.PriceID, toPriceID, from.UpdatedAt.UnixMicro())
}

// result logs err and maps it to the reconciler's error taxonomy: domain
// sentinels pass through, anything else becomes ErrReconciliationFailed.
func (r *Reconciler) result(ctx context.Context, op string, err error, attrs ...any) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ledger.ErrAlreadyCredited) {
		r.log.InfoContext(ctx, op+": already credited", attrs...)
		return err
	}

	for _, domain := range []error{
		ErrInvalidPlan, ErrSubscriptionNotFound, ErrUnauthorized, ErrAlreadyOnPlan,
		ErrMissingUserID, ErrInvalidPurchase, ErrInvalidSubscriptionState, ErrReconciliationFailed,
	} {
		if errors.Is(err, domain) {
			r.log.WarnContext(ctx, op+" rejected", append(attrs, logger.Error(err))...)
			return err
		}
	}

	r.log.ErrorContext(ctx, op+" failed", append(attrs, logger.Error(err))...)
	return errors.Join(ErrReconciliationFailed, err)
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "You must be signed in to manage this subscription."
	case errors.Is(err, ErrInvalidPlan):
		return "The selected plan is not available."
	case errors.Is(err, ErrSubscriptionNotFound):
		return "Subscription not found."
	case errors.Is(err, ErrAlreadyOnPlan):
		return "You are already subscribed to this plan."
	case errors.Is(err, ErrNoSubscriptionItems):
		return "This subscription cannot be changed."
	default:
		return "Failed to update subscription. Please try again later."
	}
}
