package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/referral/pkg/db"
)

// Failure reasons reported on referral_scheduler_job_failures_total.
const (
	ReasonTimeout   = "timeout"
	ReasonTransient = "transient_store_failure"
	ReasonOther     = "other"
)

// ErrLockHeld is returned by jobs that skipped a run because another replica owns it.
var ErrLockHeld = errors.New("scheduler_lock_held")

// SchedulerMetrics tracks sweep runs: how often they ran, were skipped,
// failed, how long they took and how many rows they touched.
type SchedulerMetrics struct {
	runs      *prometheus.CounterVec
	skips     *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
}

func ProvideScheduler(cfg Config) *SchedulerMetrics {
	return NewSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
}

func NewSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	labels := constLabels(cfg)
	counter := func(name, help string, variable ...string) *prometheus.CounterVec {
		return register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, variable))
	}

	return &SchedulerMetrics{
		runs:      counter("referral_scheduler_job_runs_total", "Job runs that acquired the lock.", "job"),
		skips:     counter("referral_scheduler_job_skips_total", "Job runs skipped because another holder had the lock.", "job"),
		failures:  counter("referral_scheduler_job_failures_total", "Failed job runs by reason.", "job", "reason"),
		processed: counter("referral_scheduler_rows_processed_total", "Rows expired or redelivered by jobs.", "job"),
		duration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "referral_scheduler_job_duration_seconds",
			Help:        "Job run latency.",
			Buckets:     []float64{0.01, 0.05, 0.25, 1, 5, 15, 30, 60, 120},
			ConstLabels: labels,
		}, []string{"job"})),
	}
}

// ObserveSkip counts a run that lost the lock race.
func (m *SchedulerMetrics) ObserveSkip(job string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(job).Inc()
}

// ObserveRun records a finished run. err is the job's own error, if any.
func (m *SchedulerMetrics) ObserveRun(job string, elapsed time.Duration, processed int, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if processed > 0 {
		m.processed.WithLabelValues(job).Add(float64(processed))
	}
	if err != nil {
		m.failures.WithLabelValues(job, FailureReason(err)).Inc()
	}
}

// ObserveFailure counts a run that failed before the job body executed.
func (m *SchedulerMetrics) ObserveFailure(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.failures.WithLabelValues(job, FailureReason(err)).Inc()
}

func FailureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonTimeout
	case db.IsTransient(err):
		return ReasonTransient
	default:
		return ReasonOther
	}
}
