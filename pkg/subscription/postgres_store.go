package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/creditkit/pkg/pg"
)

// PostgresStore keeps mirrors in the subscriptions table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("subscription: pool is required")
	}
	return &PostgresStore{pool: pool}
}

const subscriptionColumns = `id, user_id, provider_subscription_id, plan, price_id, status,
  period_start, period_end, cancel_at_period_end, created_at, updated_at`

const (
	getByProviderIDSQL = `SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE provider_subscription_id = $1
FOR UPDATE`

	getActiveByUserSQL = `SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE user_id = $1 AND status IN ('active', 'trialing')
ORDER BY period_start DESC
LIMIT 1`

	saveSubscriptionSQL = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (provider_subscription_id) DO UPDATE SET
  plan = EXCLUDED.plan,
  price_id = EXCLUDED.price_id,
  status = EXCLUDED.status,
  period_start = EXCLUDED.period_start,
  period_end = EXCLUDED.period_end,
  cancel_at_period_end = EXCLUDED.cancel_at_period_end,
  updated_at = EXCLUDED.updated_at`

	listRenewedSQL = `SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE status = 'active' AND period_start BETWEEN $1 AND $2
ORDER BY period_start, provider_subscription_id`
)

func (s *PostgresStore) GetByProviderID(ctx context.Context, providerSubID string) (*Subscription, error) {
	return s.getOne(ctx, getByProviderIDSQL, providerSubID)
}

func (s *PostgresStore) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.getOne(ctx, getActiveByUserSQL, userID)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg any) (*Subscription, error) {
	sub, err := scanSubscription(pg.Conn(ctx, s.pool).QueryRow(ctx, query, arg))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrFailedToLoadSubscription, err)
	}
	return sub, nil
}

func (s *PostgresStore) Save(ctx context.Context, sub *Subscription) error {
	if sub == nil || sub.ProviderSubID == "" {
		return ErrMissingSubscriptionID
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	_, err := pg.Conn(ctx, s.pool).Exec(ctx, saveSubscriptionSQL,
		sub.ID, sub.UserID, sub.ProviderSubID, sub.Plan, sub.PriceID, string(sub.Status),
		nullTime(sub.PeriodStart), nullTime(sub.PeriodEnd), sub.CancelAtPeriodEnd,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return errors.Join(ErrFailedToSaveSubscription, err)
	}
	return nil
}

func (s *PostgresStore) ListRenewed(ctx context.Context, from, to time.Time) ([]Subscription, error) {
	rows, err := pg.Conn(ctx, s.pool).Query(ctx, listRenewedSQL, from, to)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadSubscription, err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadSubscription, err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToLoadSubscription, err)
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var (
		sub        Subscription
		status     string
		start, end *time.Time
	)
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.ProviderSubID, &sub.Plan, &sub.PriceID, &status,
		&start, &end, &sub.CancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = Status(status)
	if start != nil {
		sub.PeriodStart = start.UTC()
	}
	if end != nil {
		sub.PeriodEnd = end.UTC()
	}
	return &sub, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
