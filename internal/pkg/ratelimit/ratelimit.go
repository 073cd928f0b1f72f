// Package ratelimit provides atomic Redis-backed rate limiting for calls to
// the external annotation service. Limits are enforced with a Lua script so
// the check-and-increment is a single atomic operation, avoiding the race
// inherent in GET → check → INCR patterns.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for atomic fixed-window rate limit check. Increments the
// window counter only if the limit has not been reached.
const windowLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current >= limit then
    return {0, current}
end

current = redis.call("INCR", key)
if current == 1 then
    redis.call("EXPIRE", key, ttl)
end
return {1, current}
`

// Limiter enforces a per-minute request budget for a named resource.
type Limiter struct {
	redis     *redis.Client
	script    *redis.Script
	resource  string
	perMinute int
}

// NewLimiter creates a limiter allowing perMinute requests per minute for
// the given resource name.
func NewLimiter(rdb *redis.Client, resource string, perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Limiter{
		redis:     rdb,
		script:    redis.NewScript(windowLuaScript),
		resource:  resource,
		perMinute: perMinute,
	}
}

// Allow atomically consumes one request from the current minute window.
// Returns false when the budget is exhausted.
func (l *Limiter) Allow(ctx context.Context) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:minute:%d", l.resource, time.Now().Unix()/60)
	res, err := l.script.Run(ctx, l.redis, []string{key}, l.perMinute, 120).Slice()
	if err != nil {
		return false, fmt.Errorf("ratelimit script: %w", err)
	}
	if len(res) < 1 {
		return false, fmt.Errorf("ratelimit script: unexpected reply %v", res)
	}
	allowed, _ := res[0].(int64)
	return allowed == 1, nil
}

// Wait blocks until a request slot is available or the context is done.
// It polls the window rather than subscribing; annotation calls are
// multi-second round trips so coarse polling is fine.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, err := l.Allow(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}
