package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisReplayProtector claims a delivery id in Redis before the HTTP call so
// two workers racing the same due row send at most one request per TTL.
// A nil client disables the guard, which single-worker deployments tolerate.
type RedisReplayProtector struct {
	Client *redis.Client
}

func (r RedisReplayProtector) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	return r.Client.SetNX(ctx, key, "1", ttl).Result()
}

func (r RedisReplayProtector) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}
