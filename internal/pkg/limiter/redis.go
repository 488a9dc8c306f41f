package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// attemptScript keeps the admissions of a key in a sorted set scored by time.
// It trims entries older than the window, admits when fewer than the limit
// remain and otherwise returns when the oldest admission expires.
var attemptScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) < limit then
	local seq = redis.call('INCR', key .. ':seq')
	redis.call('ZADD', key, now, now .. ':' .. seq)
	redis.call('PEXPIRE', key, window)
	redis.call('PEXPIRE', key .. ':seq', window)
	return {1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {0, tonumber(oldest[2]) + window - now}
`)

// RedisAuthThrottle is a sliding-window AuthThrottle shared by every server
// process pointing at the same Redis.
type RedisAuthThrottle struct {
	client redis.UniversalClient
	prefix string
	max    int
	window time.Duration
	now    func() time.Time
}

var _ AuthThrottle = (*RedisAuthThrottle)(nil)

// NewRedisAuthThrottle admits max attempts per key per window.
func NewRedisAuthThrottle(client redis.UniversalClient, max int, window time.Duration) *RedisAuthThrottle {
	return &RedisAuthThrottle{
		client: client,
		prefix: "roomchat:throttle:",
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Attempt implements AuthThrottle.
func (t *RedisAuthThrottle) Attempt(ctx context.Context, key string) (Decision, error) {
	args := []any{t.now().UnixMilli(), t.window.Milliseconds(), t.max}

	res, err := attemptScript.Run(ctx, t.client, []string{t.prefix + key}, args...).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("auth throttle: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("auth throttle: unexpected reply %v", res)
	}

	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}
