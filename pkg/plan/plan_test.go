package plan_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creditkit/pkg/plan"
)

func testPlans() []plan.Plan {
	return []plan.Plan{
		{Name: "pro", PriceID: "price_pro", Limits: plan.Limits{Tokens: 300}, Features: []plan.Feature{"chat", "export"}},
		{Name: "basic", PriceID: "price_basic", Limits: plan.Limits{Tokens: 100}, Features: []plan.Feature{"chat"}},
	}
}

func TestCatalog_Lookup(t *testing.T) {
	t.Parallel()

	catalog, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(testPlans()...))
	require.NoError(t, err)

	t.Run("by name", func(t *testing.T) {
		t.Parallel()
		p, ok := catalog.FindByName("pro")
		require.True(t, ok)
		assert.Equal(t, int64(300), p.Tokens())
		assert.True(t, p.HasFeature("export"))
	})

	t.Run("by price id", func(t *testing.T) {
		t.Parallel()
		p, ok := catalog.FindByPriceID("price_basic")
		require.True(t, ok)
		assert.Equal(t, "basic", p.Name)
		assert.False(t, p.HasFeature("export"))
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		_, ok := catalog.FindByName("enterprise")
		assert.False(t, ok)
		_, ok = catalog.FindByPriceID("price_enterprise")
		assert.False(t, ok)
	})

	t.Run("all sorted by tokens", func(t *testing.T) {
		t.Parallel()
		all := catalog.All()
		require.Len(t, all, 2)
		assert.Equal(t, "basic", all[0].Name)
		assert.Equal(t, "pro", all[1].Name)
	})

	t.Run("returned plans are copies", func(t *testing.T) {
		t.Parallel()
		p, _ := catalog.FindByName("basic")
		p.Features[0] = "mutated"
		again, _ := catalog.FindByName("basic")
		assert.Equal(t, plan.Feature("chat"), again.Features[0])
	})
}

func TestCatalog_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		plans []plan.Plan
	}{
		{
			name:  "duplicate name",
			plans: []plan.Plan{{Name: "a", PriceID: "p1"}, {Name: "a", PriceID: "p2"}},
		},
		{
			name:  "duplicate price id",
			plans: []plan.Plan{{Name: "a", PriceID: "p1"}, {Name: "b", PriceID: "p1"}},
		},
		{
			name:  "negative tokens",
			plans: []plan.Plan{{Name: "a", PriceID: "p1", Limits: plan.Limits{Tokens: -1}}},
		},
		{
			name:  "missing price id",
			plans: []plan.Plan{{Name: "a"}},
		},
		{
			name:  "bad currency",
			plans: []plan.Plan{{Name: "a", PriceID: "p1", Price: plan.Money{Amount: 100, Currency: "usd"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(tt.plans...))
			assert.ErrorIs(t, err, plan.ErrInvalidPlanConfiguration)
		})
	}
}

type failingSource struct{}

func (failingSource) Load(context.Context) ([]plan.Plan, error) {
	return nil, errors.New("disk on fire")
}

func TestNewCatalog_SourceErrors(t *testing.T) {
	t.Parallel()

	_, err := plan.NewCatalog(context.Background(), failingSource{})
	assert.ErrorIs(t, err, plan.ErrFailedToLoadPlans)

	assert.Panics(t, func() { _ = plan.NewInMemSource() })
	assert.Panics(t, func() { _, _ = plan.NewCatalog(context.Background(), nil) })
}

func TestMustCatalog(t *testing.T) {
	t.Parallel()

	c := plan.MustCatalog(testPlans()...)
	assert.Len(t, c.All(), 2)

	assert.Panics(t, func() { plan.MustCatalog() })
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	t.Run("loads yaml", func(t *testing.T) {
		t.Parallel()
		catalog, err := plan.NewCatalog(context.Background(), plan.NewFileSource("testdata/plans.yaml"))
		require.NoError(t, err)

		p, ok := catalog.FindByPriceID("price_pro_monthly")
		require.True(t, ok)
		assert.Equal(t, "pro", p.Name)
		assert.Equal(t, int64(300), p.Limits.Tokens)
		assert.Equal(t, plan.Money{Amount: 2900, Currency: "USD"}, p.Price)
		assert.Equal(t, "For teams that ship every day", p.Description)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := plan.NewCatalog(context.Background(), plan.NewFileSource("testdata/nope.yaml"))
		assert.ErrorIs(t, err, plan.ErrFailedToReadPlanFile)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		t.Parallel()
		_, err := plan.ParseYAML([]byte("plans:\n  - name: a\n    price_id: p\n    tokens: 5\n"))
		assert.ErrorIs(t, err, plan.ErrFailedToParsePlanFile)
	})
}
