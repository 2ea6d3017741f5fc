package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/mentorscore/session-api/internal/redis"
)

// slidingWindowScript keeps one sorted-set member per accepted request,
// scored by its arrival time in milliseconds.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    if #oldest >= 2 then
        return {0, tonumber(oldest[2]) + window}
    end
    return {0, now + window}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window + 1000)
return {1, now + window}
`)

type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// CheckLimit records one request under key and reports whether it fits in
// limit requests per window. Requests are denied when redis is unreachable.
func (rl *RateLimiter) CheckLimit(
	ctx context.Context,
	key string,
	limit int,
	window time.Duration,
) (allowed bool, resetAt time.Time) {
	now := time.Now()
	result, err := slidingWindowScript.Run(
		ctx,
		rl.client,
		[]string{redisclient.RateLimitKey(key)},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		newMember(now),
	).Int64Slice()

	if err != nil || len(result) != 2 {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("rate limit check failed, denying request")
		return false, now.Add(window)
	}

	return result[0] == 1, time.UnixMilli(result[1])
}

func newMember(now time.Time) string {
	return now.Format("20060102T150405.000000000") + "-" + shortID()
}
