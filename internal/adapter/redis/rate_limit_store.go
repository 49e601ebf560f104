package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const rateLimitCallTimeout = 250 * time.Millisecond

// tokenBucketScript refills the bucket for the elapsed time, then takes one
// token if available. Returns 1 when the request is allowed.
// ARGV: [1]=tokens per second, [2]=burst, [3]=now_ms, [4]=idle ttl_ms
var tokenBucketScript = goredis.NewScript(`
local state = redis.call('HMGET', KEYS[1], 'tokens', 'last')
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
local elapsed = math.max(0, now - last) / 1000.0
tokens = math.min(burst, tokens + elapsed * rate)
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return allowed
`)

// RateLimitStore is a token bucket per identifier shared by every instance.
// It satisfies echo's RateLimiterStore. Redis failures let the request
// through.
type RateLimitStore struct {
	rdb   goredis.Scripter
	clock clockwork.Clock
	rate  float64
	burst int
	idle  time.Duration
}

func NewRateLimitStore(rdb goredis.Scripter, clock clockwork.Clock, ratePerSecond float64, burst int) *RateLimitStore {
	idle := time.Minute
	if ratePerSecond > 0 {
		// long enough for an empty bucket to refill completely
		if full := time.Duration(float64(burst) / ratePerSecond * float64(time.Second)); full > idle {
			idle = full
		}
	}
	return &RateLimitStore{rdb: rdb, clock: clock, rate: ratePerSecond, burst: burst, idle: idle}
}

func (s *RateLimitStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rateLimitCallTimeout)
	defer cancel()

	allowed, err := s.take(ctx, identifier)
	if err != nil {
		slog.Warn("Shared rate limit check failed, allowing request", "identifier", identifier, "error", err)
		return true, nil
	}
	return allowed, nil
}

func (s *RateLimitStore) take(ctx context.Context, identifier string) (bool, error) {
	res, err := tokenBucketScript.Run(ctx, s.rdb, []string{rateLimitKey(identifier)},
		strconv.FormatFloat(s.rate, 'f', -1, 64),
		s.burst,
		s.clock.Now().UnixMilli(),
		s.idle.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("token bucket script failed: %w", err)
	}
	return res == 1, nil
}

func rateLimitKey(identifier string) string {
	return "ratelimit:" + identifier
}
