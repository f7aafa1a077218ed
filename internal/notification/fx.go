package notification

import (
	"github.com/smallbiznis/referral/internal/notification/domain"
	"github.com/smallbiznis/referral/internal/notification/notifier"
	"github.com/smallbiznis/referral/internal/notification/repository"
	"github.com/smallbiznis/referral/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(notifier.New),
	fx.Provide(service.New),
	fx.Provide(func(d *service.Dispatcher) domain.Dispatcher { return d }),
)
