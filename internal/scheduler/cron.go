package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewCron registers the enabled jobs on their specs. Overlapping ticks of the
// same job are skipped.
func (s *Scheduler) NewCron(ctx context.Context) (*cron.Cron, error) {
	logger := cronLogger{log: s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)

	specs := map[string]string{
		JobExpireStale:        s.cfg.ExpireSpec,
		JobRetryNotifications: s.cfg.RetrySpec,
	}
	if s.pusher != nil {
		specs[JobPushMetrics] = s.cfg.PushSpec
	}
	for name, spec := range specs {
		if spec == "" || !s.isJobEnabled(name) {
			continue
		}
		name := name
		job := cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
			if err := s.Run(ctx, name); err != nil {
				s.log.Warn("scheduled job failed", zap.String("job", name), zap.Error(err))
			}
		}))
		if _, err := c.AddJob(spec, job); err != nil {
			return nil, err
		}
		s.log.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	}
	return c, nil
}
