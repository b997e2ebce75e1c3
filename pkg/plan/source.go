package plan

import "context"

// Source loads the plan list the catalog is built from.
type Source interface {
	Load(ctx context.Context) ([]Plan, error)
}

type inMemSource struct {
	plans []Plan
}

// NewInMemSource returns a Source over a copy of the given plans.
// Panics if no plans are provided.
func NewInMemSource(plans ...Plan) Source {
	if len(plans) < 1 {
		panic("plan: at least one plan is required")
	}
	return &inMemSource{plans: clonePlans(plans)}
}

// Load returns a copy of the stored plans.
func (s *inMemSource) Load(ctx context.Context) ([]Plan, error) {
	return clonePlans(s.plans), nil
}

func clonePlans(plans []Plan) []Plan {
	out := make([]Plan, len(plans))
	for i, p := range plans {
		out[i] = p.clone()
	}
	return out
}
