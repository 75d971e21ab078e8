package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/edgeee/portfolio/api"
	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed window rate limiter. Each window is a counter key that
// expires with the window, so idle clients leave nothing behind.
type Limiter struct {
	cli    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// Allow records a hit for key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (api.Limit, error) {
	key = l.prefix + key

	n, err := l.cli.Incr(ctx, key).Result()
	if err != nil {
		return api.Limit{}, fmt.Errorf("incr: %w", err)
	}
	if n == 1 {
		if err := l.cli.Expire(ctx, key, l.window).Err(); err != nil {
			return api.Limit{}, fmt.Errorf("expire: %w", err)
		}
	}

	if n <= int64(l.limit) {
		return api.Limit{Allowed: true, Remaining: l.limit - int(n)}, nil
	}

	ttl, err := l.cli.TTL(ctx, key).Result()
	if err != nil {
		return api.Limit{}, fmt.Errorf("ttl: %w", err)
	}
	if ttl < 0 {
		// The expire after the first hit never landed; start a new window.
		if err := l.cli.Expire(ctx, key, l.window).Err(); err != nil {
			return api.Limit{}, fmt.Errorf("expire: %w", err)
		}
		ttl = l.window
	}
	return api.Limit{Allowed: false, RetryAfter: ttl}, nil
}
