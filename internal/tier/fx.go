package tier

import (
	"github.com/smallbiznis/referral/internal/config"
	"github.com/smallbiznis/referral/internal/tier/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("tier",
	fx.Provide(func(holder *config.TierConfigHolder) domain.Provider { return holder }),
)
