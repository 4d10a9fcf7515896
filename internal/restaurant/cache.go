package restaurant

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a thin JSON read-through layer over Redis. A nil client disables
// caching without changing call sites.
type Cache struct {
	R   *redis.Client
	TTL time.Duration
}

func (c Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c.R == nil {
		return false, nil
	}
	raw, err := c.R.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c Cache) SetJSON(ctx context.Context, key string, value any) error {
	if c.R == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return c.R.Set(ctx, key, raw, ttl).Err()
}

func (c Cache) Delete(ctx context.Context, keys ...string) error {
	if c.R == nil || len(keys) == 0 {
		return nil
	}
	return c.R.Del(ctx, keys...).Err()
}
