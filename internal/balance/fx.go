package balance

import (
	"github.com/smallbiznis/referral/internal/balance/domain"
	"github.com/smallbiznis/referral/internal/balance/repository"
	"github.com/smallbiznis/referral/internal/balance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("balance.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(svc domain.Service) domain.Crediter { return svc }),
)
