package renewal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/creditkit/pkg/ledger"
	"github.com/dmitrymomot/creditkit/pkg/logger"
	"github.com/dmitrymomot/creditkit/pkg/subscription"
)

// Reconciler credits one renewed subscription period.
type Reconciler interface {
	CreditRenewal(ctx context.Context, sub subscription.Subscription) error
}

// Lister returns active subscriptions whose period started in [from, to].
type Lister interface {
	ListRenewed(ctx context.Context, from, to time.Time) ([]subscription.Subscription, error)
}

// Summary reports the outcome of one sweep.
type Summary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Sweeper credits renewal tokens to subscriptions whose billing period
// started within the configured window. Running it more than once for the
// same window credits each period at most once.
//
// The window reaches back to the start of the last sweep without failures
// when that is earlier than now-Window, so late ticks leave no gap between
// consecutive windows.
type Sweeper struct {
	rec    Reconciler
	subs   Lister
	locker Locker
	cfg    Config
	log    *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	lastClean time.Time // start of the last sweep that had no failures
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLocker enables the cross-process sweep lock.
func WithLocker(l Locker) Option {
	return func(s *Sweeper) { s.locker = l }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper creates a Sweeper. Zero config values fall back to DefaultConfig.
func NewSweeper(rec Reconciler, subs Lister, cfg Config, opts ...Option) *Sweeper {
	if rec == nil {
		panic("renewal: reconciler is required")
	}
	if subs == nil {
		panic("renewal: subscription lister is required")
	}

	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.LockKey == "" {
		cfg.LockKey = def.LockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}

	s := &Sweeper{
		rec:  rec,
		subs: subs,
		cfg:  cfg,
		log:  slog.Default(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("renewal"))

	return s
}

// Run performs one sweep. A failing subscription is counted and logged, it
// never stops the sweep. Returns ErrSweepInProgress with a zero summary when
// another sweep holds the lock.
func (s *Sweeper) Run(ctx context.Context) (Summary, error) {
	if s.locker != nil {
		unlock, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, ErrSweepInProgress) {
				s.log.InfoContext(ctx, "renewal sweep skipped: already in progress")
			}
			return Summary{}, err
		}
		defer func() {
			// release even when ctx is already canceled
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.WarnContext(ctx, "failed to release renewal sweep lock", logger.Error(err))
			}
		}()
	}

	start := s.now()
	subs, err := s.subs.ListRenewed(ctx, s.windowStart(start), start)
	if err != nil {
		s.log.ErrorContext(ctx, "renewal sweep failed", logger.Error(err))
		return Summary{}, errors.Join(ErrFailedToListSubscriptions, err)
	}

	var succeeded, skipped, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			err := s.rec.CreditRenewal(ctx, sub)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ledger.ErrAlreadyCredited):
				skipped.Add(1)
			default:
				failed.Add(1)
				s.log.ErrorContext(ctx, "renewal credit failed",
					logger.UserID(sub.UserID),
					logger.SubscriptionID(sub.ProviderSubID),
					logger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{
		Processed: len(subs),
		Succeeded: int(succeeded.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}

	if summary.Failed == 0 {
		s.mu.Lock()
		if start.After(s.lastClean) {
			s.lastClean = start
		}
		s.mu.Unlock()
	}

	s.log.InfoContext(ctx, "renewal sweep finished",
		slog.Int("processed", summary.Processed),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		logger.Duration(s.now().Sub(start)))

	return summary, nil
}

func (s *Sweeper) windowStart(now time.Time) time.Time {
	from := now.Add(-s.cfg.Window)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastClean.IsZero() && s.lastClean.Before(from) {
		return s.lastClean
	}
	return from
}
