package subscription

import (
	"log/slog"
	"time"
)

// DefaultOperationTimeout bounds every reconciler operation.
const DefaultOperationTimeout = 10 * time.Second

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// WithGateway enables UpdateExistingSubscription.
func WithGateway(g Gateway) Option {
	return func(r *Reconciler) {
		r.gateway = g
	}
}

// WithTransactor sets the unit-of-work runner. Defaults to NopTransactor.
func WithTransactor(tx Transactor) Option {
	return func(r *Reconciler) {
		if tx != nil {
			r.tx = tx
		}
	}
}

// WithOperationTimeout sets the deadline applied to each operation.
// Timed out operations fail and are not retried.
func WithOperationTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the time source used for mirror timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}
