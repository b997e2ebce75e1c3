package plan

import "errors"

var (
	ErrPlanNotFound             = errors.New("plan not found")
	ErrNoPlans                  = errors.New("at least one plan is required")
	ErrInvalidPlanConfiguration = errors.New("invalid plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load plans")
	ErrFailedToReadPlanFile     = errors.New("failed to read plan file")
	ErrFailedToParsePlanFile    = errors.New("failed to parse plan file")
)
