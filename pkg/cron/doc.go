// Package cron runs periodic in-process jobs such as the daily renewal sweep.
//
// A Runner checks registered jobs on a fixed interval and runs those whose
// Schedule is due. Jobs run sequentially and are rescheduled from the time
// they finish, so missed runs are not replayed after downtime.
//
//	runner := cron.NewRunner(cron.WithLogger(log))
//	_ = runner.Add("renewal-sweep", cron.DailyAt(0, 5), func(ctx context.Context) error {
//	    _, err := sweeper.Run(ctx)
//	    return err
//	})
//	go runner.Start(ctx)
package cron
