package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis_rate/v10"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/referral/internal/config"
)

const keyTrack = "referral:track:%s"

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// TrackLimiter caps funnel tracking calls per client. A nil limiter, or one
// without redis, allows everything.
type TrackLimiter struct {
	limiter   *redis_rate.Limiter
	perMinute int
}

func NewTrackLimiter(cfg config.Config, client *redis.Client) *TrackLimiter {
	if client == nil || cfg.TrackRateLimitPerMinute <= 0 {
		return &TrackLimiter{}
	}
	return &TrackLimiter{
		limiter:   redis_rate.NewLimiter(client),
		perMinute: cfg.TrackRateLimitPerMinute,
	}
}

func (l *TrackLimiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

func (l *TrackLimiter) Allow(ctx context.Context, client string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	client = strings.TrimSpace(client)
	if client == "" {
		client = "unknown"
	}

	res, err := l.limiter.Allow(ctx, fmt.Sprintf(keyTrack, client), redis_rate.PerMinute(l.perMinute))
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}
