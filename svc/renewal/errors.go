package renewal

import "errors"

var (
	ErrSweepInProgress           = errors.New("renewal sweep already in progress")
	ErrFailedToListSubscriptions = errors.New("failed to list renewed subscriptions")
	ErrFailedToAcquireLock       = errors.New("failed to acquire renewal sweep lock")
)
