package cron

import "errors"

var (
	// ErrInvalidSchedule is returned when a schedule cannot be parsed.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrJobAlreadyRegistered is returned when a job name is reused.
	ErrJobAlreadyRegistered = errors.New("job already registered")

	// ErrNoJobs is returned by Start when no jobs are registered.
	ErrNoJobs = errors.New("runner has no registered jobs")

	// ErrNilJob is returned when a nil job or schedule is registered.
	ErrNilJob = errors.New("job and schedule are required")
)
