package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/moff-wallet/pkg/errors"
)

// RateLimiter counts requests per key in a shared redis window.
type RateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

func NewRateLimiter(client *redis.Client, perMinute int) *RateLimiter {
	return &RateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.PerMinute(perMinute),
	}
}

// Allow takes one request for key. When denied it also returns how long to
// wait before the next one is allowed.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := r.limiter.Allow(ctx, KeyPrefix+key, r.limit)
	if err != nil {
		return false, 0, errors.Wrap(err, "rate limit")
	}
	if res.Allowed == 0 {
		return false, res.RetryAfter, nil
	}
	return true, 0, nil
}
