package email

import (
	"github.com/smallbiznis/referral/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.Notification.SMTPHost == "" {
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.Notification.SMTPHost,
		Port:     cfg.Notification.SMTPPort,
		Username: cfg.Notification.SMTPUsername,
		Password: cfg.Notification.SMTPPassword,
		From:     cfg.Notification.SMTPFrom,
	})
}
