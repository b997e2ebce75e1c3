// Package plan holds the static plan catalog: named tiers with a monthly token
// entitlement, a provider price id, a price and a feature list.
//
// Plans are immutable at runtime. A Catalog is built once from a Source, either
// an in-memory list or a YAML file, and validated with go-playground/validator:
//
//	catalog, err := plan.NewCatalog(ctx, plan.NewFileSource("config/plans.yaml"))
//	if err != nil {
//		return err
//	}
//
//	p, ok := catalog.FindByPriceID(event.PriceID)
//	if !ok {
//		return subscription.ErrInvalidPlan
//	}
//
// Lookups never fail beyond "not found"; callers decide whether a missing plan
// is an error.
package plan
