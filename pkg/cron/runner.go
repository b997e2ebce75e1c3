package cron

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/creditkit/pkg/logger"
)

// Job is a unit of periodic work.
type Job func(ctx context.Context) error

type entry struct {
	name     string
	schedule Schedule
	job      Job
	next     time.Time
}

// Runner executes registered jobs in-process when their schedule is due.
// Due jobs run one after another, so a job never overlaps itself.
type Runner struct {
	mu       sync.Mutex
	jobs     map[string]*entry
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		jobs:     make(map[string]*entry),
		interval: 30 * time.Second,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("cron"))
	return r
}

// Add registers a job. The first run is the schedule's next time after now.
func (r *Runner) Add(name string, schedule Schedule, job Job) error {
	if schedule == nil || job == nil {
		return ErrNilJob
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		return ErrJobAlreadyRegistered
	}
	e := &entry{name: name, schedule: schedule, job: job, next: schedule.Next(r.now())}
	r.jobs[name] = e

	r.log.Info("registered job",
		slog.String("job", name),
		slog.String("schedule", schedule.String()),
		slog.Time("next_run", e.next))
	return nil
}

// Jobs returns the registered job names, sorted.
func (r *Runner) Jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start runs due jobs until ctx is canceled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	count := len(r.jobs)
	r.mu.Unlock()
	if count == 0 {
		return ErrNoJobs
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("runner shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.runDue(ctx)
		}
	}
}

func (r *Runner) runDue(ctx context.Context) {
	now := r.now()

	r.mu.Lock()
	var due []*entry
	for _, e := range r.jobs {
		if !e.next.After(now) {
			due = append(due, e)
		}
	}
	r.mu.Unlock()

	slices.SortFunc(due, func(a, b *entry) int { return a.next.Compare(b.next) })

	for _, e := range due {
		if ctx.Err() != nil {
			return
		}

		start := r.now()
		err := e.job(ctx)
		attrs := []any{slog.String("job", e.name), logger.Duration(r.now().Sub(start))}
		if err != nil {
			r.log.ErrorContext(ctx, "job failed", append(attrs, logger.Error(err))...)
		} else {
			r.log.DebugContext(ctx, "job completed", attrs...)
		}

		// schedule from now so a long outage does not replay missed runs
		r.mu.Lock()
		e.next = e.schedule.Next(r.now())
		r.mu.Unlock()
	}
}
