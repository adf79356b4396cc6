package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

var (
	ErrLimiterNotConfigured = errors.New("limiter_not_configured")
	ErrLimiterKeyEmpty      = errors.New("limiter_key_empty")
	ErrLimiterInvalidRate   = errors.New("limiter_invalid_rate")
	ErrLimiterBadReply      = errors.New("limiter_bad_reply")
)

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// gcraScript keeps the theoretical arrival time (ms) of the next request in
// KEYS[1]. ARGV[1] is the emission interval in ms, ARGV[2] the burst.
// Reply: {allowed, retry_after_ms, tat_ms, now_ms}.
var gcraScript = redis.NewScript(`
local interval = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local tat = tonumber(redis.call("GET", KEYS[1]))
if tat == nil or tat < now then
  tat = now
end

local next_tat = tat + interval
local allow_at = next_tat - interval * burst
if allow_at > now then
  return {0, tostring(allow_at - now), tostring(tat), tostring(now)}
end

redis.call("SET", KEYS[1], tostring(next_tat), "PX", math.ceil(next_tat - now))
return {1, "0", tostring(next_tat), tostring(now)}
`)

// Limiter is a Redis-backed GCRA limiter shared by every dashboard replica.
type Limiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *Limiter {
	if client == nil {
		return nil
	}
	return &Limiter{client: client}
}

// Allow admits one request for key at perSecond requests per second with up
// to burst requests at once.
func (l *Limiter) Allow(ctx context.Context, key string, perSecond float64, burst int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Allowed: false}
	switch {
	case l == nil || l.client == nil:
		return denied, ErrLimiterNotConfigured
	case key == "":
		return denied, ErrLimiterKeyEmpty
	case perSecond <= 0 || burst <= 0:
		return denied, ErrLimiterInvalidRate
	}

	interval := 1000 / perSecond
	reply, err := gcraScript.Run(ctx, l.client, []string{key}, interval, burst).Slice()
	if err != nil {
		return denied, err
	}
	if len(reply) != 4 {
		return denied, ErrLimiterBadReply
	}

	allowed := replyFloat(reply[0]) == 1
	retryMs := replyFloat(reply[1])
	tat := replyFloat(reply[2])
	now := replyFloat(reply[3])

	used := (tat - now) / interval
	remaining := burst - int(math.Ceil(used))
	if remaining < 0 {
		remaining = 0
	}
	retryAfter := time.Duration(retryMs * float64(time.Millisecond))
	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      burst,
		Remaining:  remaining,
		ResetTime:  time.UnixMilli(int64(tat)),
		RetryAfter: retryAfter,
	}, nil
}

func replyFloat(v any) float64 {
	switch val := v.(type) {
	case int64:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// localLimiter throttles exports inside one process when Redis is absent.
type localLimiter struct {
	mu        sync.Mutex
	perSecond float64
	burst     int
	limiters  map[string]*rate.Limiter
	now       func() time.Time
}

func newLocalLimiter(perSecond float64, burst int) *localLimiter {
	return &localLimiter{
		perSecond: perSecond,
		burst:     burst,
		limiters:  map[string]*rate.Limiter{},
		now:       time.Now,
	}
}

func (l *localLimiter) Allow(key string) *RateLimitResult {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.perSecond), l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	now := l.now()
	reservation := lim.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return &RateLimitResult{
			Allowed:    false,
			Limit:      l.burst,
			ResetTime:  now.Add(delay),
			RetryAfter: delay,
		}
	}
	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{Allowed: true, Limit: l.burst, Remaining: remaining, ResetTime: now}
}
