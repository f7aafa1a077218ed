package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/referral/internal/clock"
	"github.com/smallbiznis/referral/internal/config"
	notificationdomain "github.com/smallbiznis/referral/internal/notification/domain"
	obscontext "github.com/smallbiznis/referral/internal/observability/context"
	obslogger "github.com/smallbiznis/referral/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/referral/internal/observability/metrics"
	"github.com/smallbiznis/referral/internal/ratelimit"
	referraldomain "github.com/smallbiznis/referral/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobExpireStale        = "expire_stale"
	JobRetryNotifications = "retry_notifications"
	JobPushMetrics        = "push_metrics"

	defaultJobTimeout = 30 * time.Second
)

var ErrUnknownJob = errors.New("unknown_job")

type Params struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	Clock      clock.Clock
	GenID      *snowflake.Node
	Referrals  referraldomain.Service
	Dispatcher notificationdomain.Dispatcher
	Locker     ratelimit.Locker
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	Pusher     *obsmetrics.RemoteWriter     `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        config.SchedulerConfig
	clock      clock.Clock
	genID      *snowflake.Node
	referrals  referraldomain.Service
	dispatcher notificationdomain.Dispatcher
	locker     ratelimit.Locker
	metrics    *obsmetrics.SchedulerMetrics
	pusher     *obsmetrics.RemoteWriter
	gatherer   prometheus.Gatherer
}

func New(p Params) *Scheduler {
	cfg := p.Config.Scheduler
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		clock:      p.Clock,
		genID:      p.GenID,
		referrals:  p.Referrals,
		dispatcher: p.Dispatcher,
		locker:     p.Locker,
		metrics:    p.Metrics,
		pusher:     p.Pusher,
		gatherer:   prometheus.DefaultGatherer,
	}
}

type jobFunc func(ctx context.Context, limit int) (int, error)

func (s *Scheduler) job(name string) (jobFunc, bool) {
	switch name {
	case JobExpireStale:
		return s.ExpireStaleJob, true
	case JobRetryNotifications:
		return s.RetryNotificationsJob, true
	case JobPushMetrics:
		return s.PushMetricsJob, true
	}
	return nil, false
}

// exclusive jobs run on one replica at a time. Metric pushes carry per-replica
// counters, so every replica pushes its own.
func exclusive(name string) bool {
	return name != JobPushMetrics
}

// ExpireStaleJob closes referrals that never reached signup in time.
func (s *Scheduler) ExpireStaleJob(ctx context.Context, limit int) (int, error) {
	return s.referrals.ExpireStale(ctx, limit)
}

// RetryNotificationsJob redelivers reward notifications whose retry is due.
func (s *Scheduler) RetryNotificationsJob(ctx context.Context, limit int) (int, error) {
	return s.dispatcher.RetryPending(ctx, limit)
}

// PushMetricsJob ships this replica's referral counters to remote_write.
func (s *Scheduler) PushMetricsJob(ctx context.Context, _ int) (int, error) {
	return s.pusher.Push(ctx, s.gatherer)
}

// Run executes one job by name, under its lock when the job is exclusive.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	fn, ok := s.job(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.runJob(ctx, name, defaultJobTimeout, fn)
}

// RunOnce executes every enabled job once.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	for _, name := range []string{JobExpireStale, JobRetryNotifications, JobPushMetrics} {
		if s.isJobEnabled(name) {
			err = errors.Join(err, s.Run(ctx, name))
		}
	}
	return err
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn jobFunc) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	ctx = obscontext.WithActor(ctx, "system", "scheduler")

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("job", name),
		zap.String("run_id", s.genID.Generate().String()),
	)

	if exclusive(name) {
		release, err := s.locker.Acquire(ctx, name, s.cfg.LockTTL)
		if errors.Is(err, obsmetrics.ErrLockHeld) {
			s.metrics.ObserveSkip(name)
			log.Debug("job skipped, another holder owns the lock")
			return nil
		}
		if err != nil {
			s.metrics.ObserveFailure(name, err)
			return fmt.Errorf("%s: %w", name, err)
		}
		defer release()
	}

	started := s.clock.Now()
	processed, err := fn(ctx, s.cfg.BatchSize)
	elapsed := s.clock.Now().Sub(started)
	s.metrics.ObserveRun(name, elapsed, processed, err)

	fields := []zap.Field{zap.Int("processed", processed), zap.Duration("duration", elapsed)}
	switch {
	case err == nil && processed == 0:
		log.Debug("job finished", fields...)
		return nil
	case err == nil:
		log.Info("job finished", fields...)
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// whatever the batch did is committed; the next tick continues
		log.Warn("job timed out", append(fields, zap.Duration("timeout", timeout), zap.Error(err))...)
		return nil
	}
	log.Warn("job failed", append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
