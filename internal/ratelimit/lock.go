package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	goredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/referral/internal/observability/metrics"
	"go.uber.org/zap"
)

const lockPrefix = "referral:lock:"

// Locker hands out named, expiring locks. Acquire returns metrics.ErrLockHeld
// when another holder owns name.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

func NewLocker(client *redis.Client, log *zap.Logger) Locker {
	if client == nil {
		return NewLocalLocker()
	}
	return &RedisLocker{
		rs:  redsync.New(goredis.NewPool(client)),
		log: log.Named("ratelimit.lock"),
	}
}

type RedisLocker struct {
	rs  *redsync.Redsync
	log *zap.Logger
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	mutex := l.rs.NewMutex(lockPrefix+name,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// redsync reports contention and unreachable nodes the same way
		return nil, fmt.Errorf("%w: %v", metrics.ErrLockHeld, err)
	}

	return func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			l.log.Warn("lock release failed", zap.String("lock", name), zap.Error(err))
		}
	}, nil
}

// LocalLocker serializes holders inside one process. ttl is ignored; the
// holder always releases.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, name string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		return nil, metrics.ErrLockHeld
	}
	l.held[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}
