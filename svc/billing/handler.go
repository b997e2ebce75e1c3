package billing

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dmitrymomot/creditkit/pkg/jwt"
	"github.com/dmitrymomot/creditkit/pkg/ledger"
	"github.com/dmitrymomot/creditkit/pkg/logger"
	"github.com/dmitrymomot/creditkit/pkg/subscription"
	"github.com/dmitrymomot/creditkit/svc/renewal"
)

// Ledger reads token balances.
type Ledger interface {
	TokenInfo(ctx context.Context, userID uuid.UUID) (*ledger.Snapshot, error)
}

// Subscriptions is the reconciler surface used by the API.
type Subscriptions interface {
	HandleEvent(ctx context.Context, ev subscription.Event) error
	CreditPurchase(ctx context.Context, ev subscription.PurchaseEvent) error
	UpdateExistingSubscription(ctx context.Context, userID uuid.UUID, providerSubID, newPriceID string) subscription.Result
	GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error)
}

// Sweeper runs the renewal sweep on demand.
type Sweeper interface {
	Run(ctx context.Context) (renewal.Summary, error)
}

// Handler serves the billing API.
type Handler struct {
	ledger   Ledger
	subs     Subscriptions
	sweeper  Sweeper
	webhooks map[string]subscription.WebhookParser
	cfg      Config
	log      *slog.Logger
	validate *validator.Validate
}

// Option configures a Handler.
type Option func(*Handler)

// WithWebhookParser serves provider webhooks at POST /webhooks/{name}.
func WithWebhookParser(name string, p subscription.WebhookParser) Option {
	return func(h *Handler) {
		if p != nil {
			h.webhooks[name] = p
		}
	}
}

// WithSweeper enables POST /internal/renewal-sweep.
func WithSweeper(s Sweeper) Option {
	return func(h *Handler) { h.sweeper = s }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHandler creates a Handler. Panics if a required dependency is nil.
func NewHandler(l Ledger, subs Subscriptions, cfg Config, opts ...Option) *Handler {
	if l == nil {
		panic("billing: ledger is required")
	}
	if subs == nil {
		panic("billing: subscriptions are required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = 2 * time.Second
	}

	h := &Handler{
		ledger:   l,
		subs:     subs,
		webhooks: make(map[string]subscription.WebhookParser),
		cfg:      cfg,
		log:      slog.Default(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(logger.Component("billing"))
	return h
}

type transactionResponse struct {
	ID        uuid.UUID       `json:"id"`
	Amount    int64           `json:"amount"`
	Action    ledger.Action   `json:"action"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type tokensResponse struct {
	Balance      int64                 `json:"balance"`
	UsedTotal    int64                 `json:"used_total"`
	Transactions []transactionResponse `json:"transactions"`
}

// tokens handles GET /tokens.
func (h *Handler) tokens(w http.ResponseWriter, r *http.Request) {
	userID := jwt.UserIDFromContext(r.Context())

	snap, err := h.ledger.TokenInfo(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "token info", err)
		return
	}

	resp := tokensResponse{
		Balance:      snap.Balance,
		UsedTotal:    snap.UsedTotal,
		Transactions: make([]transactionResponse, 0, len(snap.Transactions)),
	}
	for _, tx := range snap.Transactions {
		meta, err := ledger.MarshalMetadata(tx.Metadata)
		if err != nil {
			h.fail(w, r, "token info", err)
			return
		}
		resp.Transactions = append(resp.Transactions, transactionResponse{
			ID:        tx.ID,
			Amount:    tx.Amount,
			Action:    tx.Action,
			Metadata:  meta,
			CreatedAt: tx.CreatedAt,
		})
	}
	writeData(w, http.StatusOK, "tokens", resp)
}

type subscriptionResponse struct {
	ID                string              `json:"id"`
	Plan              string              `json:"plan"`
	PriceID           string              `json:"price_id"`
	Status            subscription.Status `json:"status"`
	PeriodStart       time.Time           `json:"period_start"`
	PeriodEnd         time.Time           `json:"period_end"`
	CancelAtPeriodEnd bool                `json:"cancel_at_period_end"`
}

// activeSubscription handles GET /subscription.
func (h *Handler) activeSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subs.GetActiveSubscription(r.Context(), jwt.UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "get subscription", err)
		return
	}
	if sub == nil {
		writeJSON(w, http.StatusOK, JSONResponse{Code: "subscription"})
		return
	}
	writeData(w, http.StatusOK, "subscription", subscriptionResponse{
		ID:                sub.ProviderSubID,
		Plan:              sub.Plan,
		PriceID:           sub.PriceID,
		Status:            sub.Status,
		PeriodStart:       sub.PeriodStart,
		PeriodEnd:         sub.PeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	})
}

type switchRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required,max=255"`
	PriceID        string `json:"price_id" validate:"required,max=255"`
}

// switchPlan handles POST /subscription/switch. The body is the
// subscription.Result; failures answer 400.
func (h *Handler) switchPlan(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := h.bindJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res := h.subs.UpdateExistingSubscription(r.Context(), jwt.UserIDFromContext(r.Context()), req.SubscriptionID, req.PriceID)
	status := http.StatusOK
	if !res.Status {
		status = http.StatusBadRequest
	}
	writeData(w, status, "subscription_switch", res)
}

// webhook handles POST /webhooks/{provider}.
//
// Verification failures answer 400. Events the reconciler rejects for good,
// such as an unknown price, answer 200 so the provider stops redelivering;
// transient failures answer 500 so it retries.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	parser, ok := h.webhooks[provider]
	if !ok {
		writeError(w, ErrNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	n, err := parser.ParseWebhook(r)
	if err != nil {
		h.log.WarnContext(r.Context(), "webhook rejected", slog.String("provider", provider), logger.Error(err))
		writeError(w, ErrBadRequest)
		return
	}

	switch {
	case n.Subscription != nil:
		err = h.subs.HandleEvent(r.Context(), *n.Subscription)
	case n.Purchase != nil:
		err = h.subs.CreditPurchase(r.Context(), *n.Purchase)
	default:
		writeData(w, http.StatusOK, "ignored", nil)
		return
	}

	switch {
	case err == nil:
		writeData(w, http.StatusOK, "processed", nil)
	case errors.Is(err, ledger.ErrAlreadyCredited):
		writeData(w, http.StatusOK, "duplicate", nil)
	case errors.Is(err, subscription.ErrReconciliationFailed):
		h.fail(w, r, "webhook", err)
	default:
		h.log.WarnContext(r.Context(), "webhook event not applied", slog.String("provider", provider), logger.Error(err))
		writeData(w, http.StatusOK, "rejected", nil)
	}
}

// renewalSweep handles POST /internal/renewal-sweep.
func (h *Handler) renewalSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeError(w, ErrNotFound)
		return
	}

	summary, err := h.sweeper.Run(r.Context())
	switch {
	case errors.Is(err, renewal.ErrSweepInProgress):
		writeError(w, ErrConflict)
	case err != nil:
		h.fail(w, r, "renewal sweep", err)
	default:
		writeData(w, http.StatusOK, "renewal_sweep", summary)
	}
}

// requireInternalSecret guards internal endpoints with a shared secret.
func (h *Handler) requireInternalSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.InternalSecret == "" {
			writeError(w, ErrNotFound)
			return
		}
		got := r.Header.Get(InternalSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.InternalSecret)) != 1 {
			writeError(w, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// fail maps domain errors to HTTP errors and logs the unexpected ones.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, subscription.ErrUnauthorized), errors.Is(err, ledger.ErrInvalidUserID):
		writeError(w, ErrUnauthorized)
	case errors.Is(err, context.DeadlineExceeded):
		h.log.ErrorContext(r.Context(), op+" timed out", logger.Error(err))
		writeError(w, ErrServiceUnavailable)
	default:
		h.log.ErrorContext(r.Context(), op+" failed", logger.Error(err))
		writeError(w, ErrInternalServer)
	}
}
