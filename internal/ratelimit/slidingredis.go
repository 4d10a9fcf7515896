// Package ratelimit throttles the merchant validator. Voucher codes are
// short enough to brute-force, so check and confirm traffic is capped per
// client IP and per normalized code.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter counts events in a Redis sorted set keyed by caller, scoring each
// member with its nanosecond timestamp. Trimming members older than the
// window on every call gives a true sliding window rather than fixed epochs.
type Limiter struct {
	Client *redis.Client
	Prefix string
}

// Allow records one event for key and reports whether it stays within max
// events per window. A nil client or non-positive limits disable throttling.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}

	now := time.Now()
	reset = now.Add(window)
	redisKey := l.Prefix + key

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%f", float64(now.Add(-window).UnixNano())))
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: key + ":" + uuid.NewString(),
	})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, reset, err
	}

	current := int(countCmd.Val())
	remaining = max - current
	if remaining < 0 {
		remaining = 0
	}
	return current <= max, remaining, reset, nil
}
