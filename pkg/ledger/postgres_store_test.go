package ledger_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creditkit/migrations"
	"github.com/dmitrymomot/creditkit/pkg/ledger"
	"github.com/dmitrymomot/creditkit/pkg/logger"
	"github.com/dmitrymomot/creditkit/pkg/pg"
)

func connectForTest(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL is not set")
	}

	cfg := pg.Config{
		ConnectionString: url,
		MaxOpenConns:     10,
		MaxIdleConns:     1,
		RetryAttempts:    1,
		MigrationsTable:  "schema_migrations",
	}
	ctx := context.Background()
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, migrations.FS, cfg, logger.Nop()))
	return pool
}

func TestPostgresStore(t *testing.T) {
	pool := connectForTest(t)
	svc := ledger.NewService(ledger.NewPostgresStore(pool), ledger.WithLogger(logger.Nop()))
	ctx := context.Background()

	subCredit := func(userID uuid.UUID, amount int64, key string) (*ledger.Ledger, error) {
		return svc.Credit(ctx, ledger.CreditParams{
			UserID: userID,
			Amount: amount,
			Action: ledger.ActionSubscriptionCredit,
			Metadata: ledger.SubscriptionMetadata{
				PlanName:       "pro",
				Type:           ledger.CreditTypeRenewal,
				SubscriptionID: "sub_1",
			},
			DedupeKey: key,
		})
	}

	t.Run("first subscription credit is the initial credit", func(t *testing.T) {
		userID := uuid.New()

		_, err := subCredit(userID, 300, "")
		require.NoError(t, err)
		_, err = subCredit(userID, 300, "")
		require.NoError(t, err)

		snap, err := svc.Snapshot(ctx, userID, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(600), snap.Balance)
		require.Len(t, snap.Transactions, 2)
		assert.Equal(t, ledger.CreditTypeRenewal, snap.Transactions[0].Metadata.(ledger.SubscriptionMetadata).Type)
		assert.Equal(t, ledger.CreditTypeInitial, snap.Transactions[1].Metadata.(ledger.SubscriptionMetadata).Type)
	})

	t.Run("repeated dedupe key writes nothing", func(t *testing.T) {
		userID := uuid.New()
		key := "period:" + userID.String() + ":sub_1:1740823200"

		_, err := subCredit(userID, 300, key)
		require.NoError(t, err)
		_, err = subCredit(userID, 300, key)
		assert.ErrorIs(t, err, ledger.ErrAlreadyCredited)

		snap, err := svc.Snapshot(ctx, userID, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(300), snap.Balance)
		require.Len(t, snap.Transactions, 1)
		assert.Equal(t, key, snap.Transactions[0].DedupeKey)
		require.NoError(t, svc.Audit(ctx, userID))
	})

	t.Run("concurrent debits never overdraw", func(t *testing.T) {
		userID := uuid.New()
		_, err := subCredit(userID, 100, "")
		require.NoError(t, err)

		var (
			wg           sync.WaitGroup
			mu           sync.Mutex
			ok, rejected int
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Debit(ctx, ledger.DebitParams{UserID: userID, Amount: 30, Action: "generate"})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ledger.ErrInsufficientBalance):
					rejected++
				default:
					t.Errorf("unexpected debit error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, ok)
		assert.Equal(t, 7, rejected)

		snap, err := svc.Snapshot(ctx, userID, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(10), snap.Balance)
		assert.Equal(t, int64(90), snap.UsedTotal)
		assert.Len(t, snap.Transactions, 4)
		require.NoError(t, svc.Audit(ctx, userID))
	})

	t.Run("debit without a ledger", func(t *testing.T) {
		_, err := svc.Debit(ctx, ledger.DebitParams{UserID: uuid.New(), Amount: 1, Action: "generate"})
		assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	})

	t.Run("has credit filters", func(t *testing.T) {
		userID := uuid.New()
		before := time.Now().Add(-time.Minute)
		_, err := subCredit(userID, 100, "")
		require.NoError(t, err)

		cases := []struct {
			name string
			q    ledger.CreditQuery
			want bool
		}{
			{"any credit", ledger.CreditQuery{UserID: userID}, true},
			{"matching action and type", ledger.CreditQuery{
				UserID: userID,
				Action: ledger.ActionSubscriptionCredit,
				Types:  []ledger.CreditType{ledger.CreditTypeRenewal, ledger.CreditTypeInitial},
				Since:  before,
			}, true},
			{"other action", ledger.CreditQuery{UserID: userID, Action: ledger.ActionPurchaseCredit}, false},
			{"other type", ledger.CreditQuery{UserID: userID, Types: []ledger.CreditType{ledger.CreditTypeUpgrade}}, false},
			{"too recent", ledger.CreditQuery{UserID: userID, Since: time.Now().Add(time.Hour)}, false},
			{"other user", ledger.CreditQuery{UserID: uuid.New()}, false},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				got, err := svc.HasCredit(ctx, tc.q)
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			})
		}
	})
}
