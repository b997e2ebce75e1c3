package plan

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

// Catalog is an immutable lookup over a validated plan list.
// It is safe for concurrent use.
type Catalog struct {
	plans   []Plan
	byName  map[string]int
	byPrice map[string]int
}

// NewCatalog loads plans from src and validates them.
// Names and price ids must be unique; token entitlements must be non-negative.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plan: source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	return newCatalog(plans)
}

// MustCatalog is like NewCatalog for plan lists known at compile time.
func MustCatalog(plans ...Plan) *Catalog {
	c, err := newCatalog(clonePlans(plans))
	if err != nil {
		panic(err)
	}
	return c
}

func newCatalog(plans []Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, ErrNoPlans
	}

	v := validator.New(validator.WithRequiredStructEnabled())

	c := &Catalog{
		plans:   make([]Plan, 0, len(plans)),
		byName:  make(map[string]int, len(plans)),
		byPrice: make(map[string]int, len(plans)),
	}

	for _, p := range plans {
		if err := v.Struct(p); err != nil {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %q: %w", p.Name, err))
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan name %q", p.Name))
		}
		if _, dup := c.byPrice[p.PriceID]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate price id %q", p.PriceID))
		}
		c.byName[p.Name] = len(c.plans)
		c.byPrice[p.PriceID] = len(c.plans)
		c.plans = append(c.plans, p)
	}

	return c, nil
}

// FindByName returns the plan with the given name.
func (c *Catalog) FindByName(name string) (Plan, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Plan{}, false
	}
	return c.plans[i].clone(), true
}

// FindByPriceID returns the plan billed under the given provider price id.
func (c *Catalog) FindByPriceID(priceID string) (Plan, bool) {
	i, ok := c.byPrice[priceID]
	if !ok {
		return Plan{}, false
	}
	return c.plans[i].clone(), true
}

// All returns every plan ordered by token entitlement, then name.
func (c *Catalog) All() []Plan {
	out := clonePlans(c.plans)
	slices.SortFunc(out, func(a, b Plan) int {
		return cmp.Or(cmp.Compare(a.Limits.Tokens, b.Limits.Tokens), cmp.Compare(a.Name, b.Name))
	})
	return out
}
