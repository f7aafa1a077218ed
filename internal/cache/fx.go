package cache

import (
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/referral/internal/config"
	"go.uber.org/fx"
)

// sharedLocalTTL bounds how long a replica may serve an entry that another
// replica already invalidated in redis.
const sharedLocalTTL = 5 * time.Second

type Params struct {
	fx.In

	Config config.Config
	Redis  *redis.Client `optional:"true"`
}

var Module = fx.Module("cache",
	fx.Provide(func(p Params) *Store {
		// a typed nil would pass the interface check in New
		if p.Redis == nil {
			return New(nil, localTTL(p.Config.StatsCacheTTL, false))
		}
		return New(p.Redis, localTTL(p.Config.StatsCacheTTL, true))
	}),
)

// localTTL picks the in-process tier TTL. Deletes only reach the local tier of
// the replica that issued them, so with a shared redis the local copy is kept short.
func localTTL(ttl time.Duration, shared bool) time.Duration {
	if shared && (ttl <= 0 || ttl > sharedLocalTTL) {
		return sharedLocalTTL
	}
	return ttl
}
