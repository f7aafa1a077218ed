package cache

import (
	"context"
	"errors"
	"time"

	rediscache "github.com/go-redis/cache/v9"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	defaultLocalSize = 10000
	defaultLocalTTL  = time.Minute
)

var ErrCacheMiss = rediscache.ErrCacheMiss

type Cache interface {
	Get(ctx context.Context, key string, target any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Store is a two-level cache: an in-process TinyLFU in front of an optional
// shared redis. Delete clears redis and this replica's local tier only; other
// replicas keep their local copy until its TTL runs out.
type Store struct {
	instance *rediscache.Cache
	group    singleflight.Group
}

// New builds a Store. client may be nil, in which case only the local tier is used.
func New(client redis.UniversalClient, localTTL time.Duration) *Store {
	if localTTL <= 0 {
		localTTL = defaultLocalTTL
	}
	opts := &rediscache.Options{
		LocalCache: rediscache.NewTinyLFU(defaultLocalSize, localTTL),
	}
	if client != nil {
		opts.Redis = client
	}
	return &Store{instance: rediscache.New(opts)}
}

func (s *Store) Get(ctx context.Context, key string, target any) error {
	return s.instance.Get(ctx, key, target)
}

func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.instance.Set(&rediscache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: value,
		TTL:   ttl,
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.instance.Delete(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return nil
	}
	return err
}

// UseCache reads key through c, calling load on a miss and storing the result.
// Concurrent misses for the same key share one load. A ttl <= 0 bypasses the cache.
func UseCache[T any](ctx context.Context, c *Store, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c == nil || ttl <= 0 {
		return load(ctx)
	}

	var v T
	err := c.Get(ctx, key, &v)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		// a broken cache must not take reads down with it
		return load(ctx)
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return loaded, err
		}
		//nolint:errcheck
		c.Set(ctx, key, loaded, ttl)
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}
