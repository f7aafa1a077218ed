package notifier

import (
	"context"
	"errors"

	"github.com/smallbiznis/referral/internal/notification/domain"
	"github.com/smallbiznis/referral/internal/observability/metrics"
	"go.uber.org/zap"
)

// Fanout sends to every channel and fails if any channel failed. A retry
// resends to all of them; channels rely on the dedupe key.
type Fanout struct {
	notifiers []domain.Notifier
	metrics   *metrics.ReferralMetrics
	log       *zap.Logger
}

func NewFanout(log *zap.Logger, m *metrics.ReferralMetrics, notifiers ...domain.Notifier) *Fanout {
	return &Fanout{notifiers: notifiers, metrics: m, log: log.Named("notification.fanout")}
}

func (f *Fanout) Channel() string {
	return "fanout"
}

func (f *Fanout) Send(ctx context.Context, msg domain.RewardAwarded) error {
	if len(f.notifiers) == 0 {
		return domain.ErrNoChannels
	}

	var errs []error
	for _, n := range f.notifiers {
		if err := n.Send(ctx, msg); err != nil {
			f.metrics.IncNotificationFailure(n.Channel())
			f.log.Warn("notification channel failed",
				zap.String("channel", n.Channel()),
				zap.String("dedupe_key", msg.DedupeKey),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
