package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// hourlyLimiter 是按整点窗口计数的固定窗口限流器，键为 rate:<scope>:<subject>:<UTC 小时>。
// nil 限流器放行所有请求。
type hourlyLimiter struct {
	counter redisRateCounter
	scope   string
	limit   int
	now     func() time.Time
}

func newHourlyLimiter(counter redisRateCounter, scope string, limit int) *hourlyLimiter {
	if counter == nil || limit <= 0 {
		return nil
	}
	return &hourlyLimiter{counter: counter, scope: scope, limit: limit, now: time.Now}
}

func (l *hourlyLimiter) key(subject string, window time.Time) string {
	return fmt.Sprintf("rate:%s:%s:%s", l.scope, subject, window.Format("2006010215"))
}

// Allow 计入一次请求并判断是否仍在限额内。计数失败时放行并返回错误，由调用方记录。
func (l *hourlyLimiter) Allow(ctx context.Context, subject string) (bool, error) {
	if l == nil {
		return true, nil
	}
	now := l.now().UTC()
	window := now.Truncate(time.Hour)
	key := l.key(subject, window)

	count, err := l.counter.Incr(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		// 窗口结束后再多保留一分钟，避免时钟偏差导致提前清零。
		ttl := window.Add(time.Hour).Sub(now) + time.Minute
		_ = l.counter.Expire(ctx, key, ttl).Err()
	}
	return count <= int64(l.limit), nil
}
