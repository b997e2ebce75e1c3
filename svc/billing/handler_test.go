package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creditkit/pkg/httpserver"
	"github.com/dmitrymomot/creditkit/pkg/jwt"
	"github.com/dmitrymomot/creditkit/pkg/ledger"
	"github.com/dmitrymomot/creditkit/pkg/logger"
	"github.com/dmitrymomot/creditkit/pkg/plan"
	"github.com/dmitrymomot/creditkit/pkg/subscription"
	"github.com/dmitrymomot/creditkit/svc/billing"
	"github.com/dmitrymomot/creditkit/svc/renewal"
)

const internalSecret = "sweep-secret"

var periodStart = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeParser struct {
	n   *subscription.Notification
	err error
}

func (p fakeParser) ParseWebhook(*http.Request) (*subscription.Notification, error) {
	return p.n, p.err
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) SwitchPrice(ctx context.Context, providerSubID, priceID string) (*subscription.ProviderSubscription, error) {
	args := m.Called(ctx, providerSubID, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.ProviderSubscription), args.Error(1)
}

type sweeperFunc func(ctx context.Context) (renewal.Summary, error)

func (f sweeperFunc) Run(ctx context.Context) (renewal.Summary, error) { return f(ctx) }

type env struct {
	router  http.Handler
	ledger  *ledger.Service
	rec     *subscription.Reconciler
	gateway *mockGateway
	auth    *jwt.Service
	parsers map[string]*fakeParser
}

func newEnv(t *testing.T, opts ...billing.Option) *env {
	t.Helper()

	svc := ledger.NewService(ledger.NewMemoryStore(), ledger.WithLogger(logger.Nop()))
	catalog := plan.MustCatalog(
		plan.Plan{Name: "basic", PriceID: "price_basic", Limits: plan.Limits{Tokens: 100}},
		plan.Plan{Name: "pro", PriceID: "price_pro", Limits: plan.Limits{Tokens: 300}},
	)
	gw := &mockGateway{}
	rec := subscription.NewReconciler(svc, catalog, subscription.NewMemoryStore(),
		subscription.WithGateway(gw),
		subscription.WithLogger(logger.Nop()),
	)
	auth, err := jwt.New([]byte("test-signing-key"))
	require.NoError(t, err)

	e := &env{ledger: svc, rec: rec, gateway: gw, auth: auth, parsers: map[string]*fakeParser{"stripe": {}}}
	opts = append([]billing.Option{
		billing.WithLogger(logger.Nop()),
		billing.WithWebhookParser("stripe", parserRef{e: e, name: "stripe"}),
	}, opts...)

	h := billing.NewHandler(svc, rec, billing.Config{InternalSecret: internalSecret}, opts...)
	e.router = h.Router(auth,
		httpserver.Check{Name: "store", Fn: func(context.Context) error { return nil }},
	)
	return e
}

// parserRef lets a test swap the webhook outcome after the router is built.
type parserRef struct {
	e    *env
	name string
}

func (p parserRef) ParseWebhook(r *http.Request) (*subscription.Notification, error) {
	return p.e.parsers[p.name].ParseWebhook(r)
}

func (e *env) do(t *testing.T, method, path, body string, userID uuid.UUID) (*httptest.ResponseRecorder, billing.JSONResponse) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != uuid.Nil {
		token, err := e.auth.Issue(userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp billing.JSONResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func (e *env) subscribe(t *testing.T, userID uuid.UUID, priceID string) {
	t.Helper()
	require.NoError(t, e.rec.HandleEvent(context.Background(), subscription.Event{
		Type:           subscription.EventSubscriptionCreated,
		SubscriptionID: "sub_1",
		UserID:         userID,
		PriceID:        priceID,
		Status:         subscription.StatusActive,
		PeriodStart:    periodStart,
		PeriodEnd:      periodStart.AddDate(0, 1, 0),
	}))
}

func dataMap(t *testing.T, resp billing.JSONResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestTokens(t *testing.T) {
	t.Parallel()

	t.Run("new user has an empty ledger", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)

		rec, resp := e.do(t, http.MethodGet, "/tokens", "", uuid.New())
		require.Equal(t, http.StatusOK, rec.Code)
		data := dataMap(t, resp)
		assert.Equal(t, float64(0), data["balance"])
		assert.Equal(t, float64(0), data["used_total"])
		assert.Equal(t, []any{}, data["transactions"])
	})

	t.Run("balance after subscribing", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		userID := uuid.New()
		e.subscribe(t, userID, "price_pro")

		rec, resp := e.do(t, http.MethodGet, "/tokens", "", userID)
		require.Equal(t, http.StatusOK, rec.Code)
		data := dataMap(t, resp)
		assert.Equal(t, float64(300), data["balance"])

		txs := data["transactions"].([]any)
		require.Len(t, txs, 1)
		tx := txs[0].(map[string]any)
		assert.Equal(t, "subscription_credit", tx["action"])
		meta := tx["metadata"].(map[string]any)
		assert.Equal(t, "subscription", meta["kind"])
		assert.Equal(t, "initial_credit", meta["type"])
	})

	t.Run("requires a token", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)

		rec, resp := e.do(t, http.MethodGet, "/tokens", "", uuid.Nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "unauthorized", resp.Error.Code)
	})
}

func TestSubscription(t *testing.T) {
	t.Parallel()

	t.Run("none", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)

		rec, resp := e.do(t, http.MethodGet, "/subscription", "", uuid.New())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, resp.Data)
	})

	t.Run("active", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		userID := uuid.New()
		e.subscribe(t, userID, "price_basic")

		rec, resp := e.do(t, http.MethodGet, "/subscription", "", userID)
		require.Equal(t, http.StatusOK, rec.Code)
		data := dataMap(t, resp)
		assert.Equal(t, "sub_1", data["id"])
		assert.Equal(t, "basic", data["plan"])
		assert.Equal(t, "active", data["status"])
		assert.Equal(t, false, data["cancel_at_period_end"])
	})
}

func TestSwitchPlan(t *testing.T) {
	t.Parallel()

	t.Run("upgrade", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		userID := uuid.New()
		e.subscribe(t, userID, "price_basic")
		e.gateway.On("SwitchPrice", mock.Anything, "sub_1", "price_pro").Return(&subscription.ProviderSubscription{
			ID:          "sub_1",
			PriceID:     "price_pro",
			Status:      subscription.StatusActive,
			PeriodStart: periodStart,
			PeriodEnd:   periodStart.AddDate(0, 1, 0),
		}, nil)

		rec, resp := e.do(t, http.MethodPost, "/subscription/switch", `{"subscription_id":"sub_1","price_id":"price_pro"}`, userID)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		data := dataMap(t, resp)
		assert.Equal(t, true, data["status"])
		assert.Equal(t, "Your subscription has been switched to the pro plan.", data["message"])

		snap, err := e.ledger.TokenInfo(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, int64(300), snap.Balance)
	})

	t.Run("someone else's subscription", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.subscribe(t, uuid.New(), "price_basic")

		rec, resp := e.do(t, http.MethodPost, "/subscription/switch", `{"subscription_id":"sub_1","price_id":"price_pro"}`, uuid.New())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, false, dataMap(t, resp)["status"])
		e.gateway.AssertNotCalled(t, "SwitchPrice", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)

		rec, resp := e.do(t, http.MethodPost, "/subscription/switch", `{"subscription_id":"sub_1"}`, uuid.New())
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "validation_error", resp.Error.Code)
		assert.Equal(t, []string{"required"}, resp.Error.Details["price_id"])
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)

		rec, _ := e.do(t, http.MethodPost, "/subscription/switch", `{"subscription_id":`, uuid.New())
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = e.do(t, http.MethodPost, "/subscription/switch", `{"subscription_id":"sub_1","price_id":"p","extra":1}`, uuid.New())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWebhooks(t *testing.T) {
	t.Parallel()

	created := func(userID uuid.UUID, priceID string) *subscription.Notification {
		return &subscription.Notification{Subscription: &subscription.Event{
			Type:           subscription.EventSubscriptionCreated,
			SubscriptionID: "sub_1",
			UserID:         userID,
			PriceID:        priceID,
			Status:         subscription.StatusActive,
			PeriodStart:    periodStart,
		}}
	}

	t.Run("subscription event is applied once", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		userID := uuid.New()
		e.parsers["stripe"].n = created(userID, "price_pro")

		for range 2 {
			rec, resp := e.do(t, http.MethodPost, "/webhooks/stripe", "{}", uuid.Nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "processed", resp.Code)
		}

		snap, err := e.ledger.TokenInfo(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, int64(300), snap.Balance)
	})

	t.Run("purchase redelivery is a duplicate", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		userID := uuid.New()
		e.parsers["stripe"].n = &subscription.Notification{Purchase: &subscription.PurchaseEvent{
			UserID: userID, PackageID: "pack_500", TokenAmount: 500, ExternalID: "cs_1",
		}}

		_, resp := e.do(t, http.MethodPost, "/webhooks/stripe", "{}", uuid.Nil)
		assert.Equal(t, "processed", resp.Code)
		_, resp = e.do(t, http.MethodPost, "/webhooks/stripe", "{}", uuid.Nil)
		assert.Equal(t, "duplicate", resp.Code)
	})

	t.Run("outcomes", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)

		e.parsers["stripe"].n, e.parsers["stripe"].err = nil, subscription.ErrWebhookVerificationFailed
		rec, _ := e.do(t, http.MethodPost, "/webhooks/stripe", "{}", uuid.Nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		e.parsers["stripe"].n, e.parsers["stripe"].err = &subscription.Notification{}, nil
		_, resp := e.do(t, http.MethodPost, "/webhooks/stripe", "{}", uuid.Nil)
		assert.Equal(t, "ignored", resp.Code)

		e.parsers["stripe"].n = created(uuid.New(), "price_unknown")
		rec, resp = e.do(t, http.MethodPost, "/webhooks/stripe", "{}", uuid.Nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "rejected", resp.Code)

		rec, _ = e.do(t, http.MethodPost, "/webhooks/paddle", "{}", uuid.Nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRenewalSweep(t *testing.T) {
	t.Parallel()

	post := func(e *env, secret string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/internal/renewal-sweep", nil)
		if secret != "" {
			req.Header.Set(billing.InternalSecretHeader, secret)
		}
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("returns the summary", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, billing.WithSweeper(sweeperFunc(func(context.Context) (renewal.Summary, error) {
			return renewal.Summary{Processed: 3, Succeeded: 2, Skipped: 1}, nil
		})))

		rec := post(e, internalSecret)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"code":"renewal_sweep","data":{"processed":3,"succeeded":2,"skipped":1,"failed":0}}`, rec.Body.String())
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, billing.WithSweeper(sweeperFunc(func(context.Context) (renewal.Summary, error) {
			t.Error("sweep must not run")
			return renewal.Summary{}, nil
		})))

		assert.Equal(t, http.StatusForbidden, post(e, "nope").Code)
		assert.Equal(t, http.StatusForbidden, post(e, "").Code)
	})

	t.Run("in progress and failures", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, billing.WithSweeper(sweeperFunc(func(context.Context) (renewal.Summary, error) {
			return renewal.Summary{}, renewal.ErrSweepInProgress
		})))
		assert.Equal(t, http.StatusConflict, post(e, internalSecret).Code)

		e = newEnv(t, billing.WithSweeper(sweeperFunc(func(context.Context) (renewal.Summary, error) {
			return renewal.Summary{}, errors.Join(renewal.ErrFailedToListSubscriptions, errors.New("db down"))
		})))
		assert.Equal(t, http.StatusInternalServerError, post(e, internalSecret).Code)
	})

	t.Run("disabled without a sweeper", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		assert.Equal(t, http.StatusNotFound, post(e, internalSecret).Code)
	})
}

func TestHealth(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec, _ := e.do(t, http.MethodGet, "/health/live", "", uuid.Nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"store":"ok"}}`, res.Body.String())
}
