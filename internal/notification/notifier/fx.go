package notifier

import (
	"strings"

	"github.com/smallbiznis/referral/internal/config"
	"github.com/smallbiznis/referral/internal/notification/domain"
	"github.com/smallbiznis/referral/internal/observability/metrics"
	"github.com/smallbiznis/referral/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Email   email.Provider
	Metrics *metrics.ReferralMetrics `optional:"true"`
}

// New assembles the configured channels. With none configured, awards are only logged.
func New(p Params) domain.Notifier {
	cfg := p.Config.Notification
	var channels []domain.Notifier
	if cfg.WebhookURL != "" {
		channels = append(channels, NewWebhook(WebhookConfig{
			URL:     cfg.WebhookURL,
			Timeout: cfg.WebhookTimeout,
			Retries: cfg.WebhookRetries,
		}))
	}
	if cfg.SMTPHost != "" && cfg.EmailTo != "" {
		channels = append(channels, NewEmail(p.Email, recipients(cfg.EmailTo)))
	}
	if len(channels) == 0 {
		channels = append(channels, NewLog(p.Log))
	}
	return NewFanout(p.Log, p.Metrics, channels...)
}

func recipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
