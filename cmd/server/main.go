// Command server runs the creditkit billing API, applies database migrations
// on start and, when enabled, the in-process renewal scheduler.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/creditkit/migrations"
	"github.com/dmitrymomot/creditkit/pkg/config"
	"github.com/dmitrymomot/creditkit/pkg/cron"
	"github.com/dmitrymomot/creditkit/pkg/httpserver"
	"github.com/dmitrymomot/creditkit/pkg/jwt"
	"github.com/dmitrymomot/creditkit/pkg/ledger"
	"github.com/dmitrymomot/creditkit/pkg/logger"
	"github.com/dmitrymomot/creditkit/pkg/pg"
	"github.com/dmitrymomot/creditkit/pkg/plan"
	"github.com/dmitrymomot/creditkit/pkg/redis"
	"github.com/dmitrymomot/creditkit/pkg/subscription"
	"github.com/dmitrymomot/creditkit/svc/billing"
	"github.com/dmitrymomot/creditkit/svc/renewal"
)

type appConfig struct {
	Env              string `env:"APP_ENV" envDefault:"development"`
	Service          string `env:"APP_SERVICE" envDefault:"creditkit"`
	LogLevel         string `env:"LOG_LEVEL"`
	PlansFile        string `env:"PLANS_FILE" envDefault:"plans.yaml"`
	StripeEnabled    bool   `env:"STRIPE_ENABLED" envDefault:"false"`
	PaddleEnabled    bool   `env:"PADDLE_ENABLED" envDefault:"false"`
	SchedulerEnabled bool   `env:"RENEWAL_SCHEDULER_ENABLED" envDefault:"true"`
}

func main() {
	var app appConfig
	config.MustLoad(&app)

	opts := []logger.Option{
		logger.WithEnvironment(app.Env, app.Service),
		logger.WithContextValue("request_id", middleware.RequestIDKey),
	}
	if app.LogLevel != "" {
		opts = append(opts, logger.WithLevelName(app.LogLevel))
	}
	log := logger.New(opts...)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, app appConfig, log *slog.Logger) error {
	var (
		pgCfg      pg.Config
		redisCfg   redis.Config
		httpCfg    httpserver.Config
		jwtCfg     jwt.Config
		billingCfg billing.Config
		renewalCfg renewal.Config
	)
	for _, c := range []func() error{
		func() error { return config.Load(&pgCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&httpCfg) },
		func() error { return config.Load(&jwtCfg) },
		func() error { return config.Load(&billingCfg) },
		func() error { return config.Load(&renewalCfg) },
	} {
		if err := c(); err != nil {
			return err
		}
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, migrations.FS, pgCfg, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error("failed to close redis client", logger.Error(err))
		}
	}()

	catalog, err := plan.NewCatalog(ctx, plan.NewFileSource(app.PlansFile))
	if err != nil {
		return err
	}

	ledgerSvc := ledger.NewService(ledger.NewPostgresStore(pool), ledger.WithLogger(log))
	subStore := subscription.NewPostgresStore(pool)

	recOpts := []subscription.Option{
		subscription.WithLogger(log),
		subscription.WithTransactor(pg.NewTransactor(pool)),
	}
	handlerOpts := []billing.Option{billing.WithLogger(log)}

	if app.StripeEnabled {
		var stripeCfg subscription.StripeConfig
		if err := config.Load(&stripeCfg); err != nil {
			return err
		}
		stripeProvider, err := subscription.NewStripeProvider(stripeCfg)
		if err != nil {
			return err
		}
		recOpts = append(recOpts, subscription.WithGateway(stripeProvider))
		handlerOpts = append(handlerOpts, billing.WithWebhookParser("stripe", stripeProvider))
	}
	if app.PaddleEnabled {
		var paddleCfg subscription.PaddleConfig
		if err := config.Load(&paddleCfg); err != nil {
			return err
		}
		paddleProvider, err := subscription.NewPaddleProvider(paddleCfg)
		if err != nil {
			return err
		}
		handlerOpts = append(handlerOpts, billing.WithWebhookParser("paddle", paddleProvider))
	}

	reconciler := subscription.NewReconciler(ledgerSvc, catalog, subStore, recOpts...)

	sweeper := renewal.NewSweeper(reconciler, subStore, renewalCfg,
		renewal.WithLocker(renewal.NewRedisLocker(redis.NewLocker(rdb, redisCfg.LockPrefix))),
		renewal.WithLogger(log),
	)
	handlerOpts = append(handlerOpts, billing.WithSweeper(sweeper))

	auth, err := jwt.NewFromConfig(jwtCfg)
	if err != nil {
		return err
	}

	handler := billing.NewHandler(ledgerSvc, reconciler, billingCfg, handlerOpts...)
	router := handler.Router(auth,
		httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
		httpserver.Check{Name: "redis", Fn: redis.Healthcheck(rdb)},
	)

	g, ctx := errgroup.WithContext(ctx)

	server := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	g.Go(func() error { return server.Run(ctx, router) })

	if app.SchedulerEnabled {
		schedule, err := cron.Parse(renewalCfg.Schedule)
		if err != nil {
			return err
		}
		runner := cron.NewRunner(cron.WithLogger(log))
		if err := runner.Add("renewal-sweep", schedule, func(ctx context.Context) error {
			_, err := sweeper.Run(ctx)
			if errors.Is(err, renewal.ErrSweepInProgress) {
				return nil
			}
			return err
		}); err != nil {
			return err
		}
		g.Go(func() error { return runner.Start(ctx) })
	}

	return g.Wait()
}
