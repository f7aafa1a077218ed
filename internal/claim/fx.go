package claim

import (
	"github.com/smallbiznis/referral/internal/claim/service"
	"go.uber.org/fx"
)

var Module = fx.Module("claim.service",
	fx.Provide(service.New),
)
