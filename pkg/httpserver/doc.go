// Package httpserver runs an http.Server with graceful shutdown and provides
// liveness and readiness handlers.
//
// Run blocks until its context is canceled, then drains in-flight requests
// within the shutdown timeout. Signal handling is left to the caller, usually
// via signal.NotifyContext in main.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	r.Get("/health/live", httpserver.LivenessHandler())
//	r.Get("/health/ready", httpserver.ReadinessHandler(log, 2*time.Second,
//	    httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
//	))
//	if err := srv.Run(ctx, r); err != nil {
//	    log.Error("server stopped", logger.Error(err))
//	}
//
// Run wraps listen errors with ErrStart and Shutdown wraps drain failures with
// ErrShutdown.
package httpserver
