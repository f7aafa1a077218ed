package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/referral/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(Register),
)

func Register(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.Scheduler.Enabled {
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	var c *cron.Cron
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			c, err = sched.NewCron(runCtx)
			if err != nil {
				cancel()
				return err
			}
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			if c == nil {
				return nil
			}
			select {
			case <-c.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
}
