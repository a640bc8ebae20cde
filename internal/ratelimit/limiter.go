// Package ratelimit implements the atomic, sliding-window quotas of
// SPEC_FULL.md §4.D: a Redis sorted set per subject, scored by timestamp,
// mutated by a single Lua script so the check-and-increment is atomic
// across process instances. The header contract
// (X-RateLimit-Remaining/Reset, Retry-After) is grounded on
// Sergey-Bar-Alfred/services/gateway/middleware/ratelimit.go.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Kind is a configured rate-limit bucket name.
type Kind string

const (
	KindMessages Kind = "messages"
	KindBets     Kind = "bets"
	KindFriends  Kind = "friends"
)

// Rule is the (max, window) pair for one Kind.
type Rule struct {
	Max    int
	Window time.Duration
}

// DefaultRules matches SPEC_FULL.md §4.D's configured kinds.
var DefaultRules = map[Kind]Rule{
	KindMessages: {Max: 20, Window: 60 * time.Second},
	KindBets:     {Max: 5, Window: 60 * time.Second},
	KindFriends:  {Max: 10, Window: 60 * time.Second},
}

// slidingWindowScript atomically: (a) trims entries older than now-window,
// (b) counts survivors, (c) on capacity either adds the new entry and
// refreshes the TTL or returns the oldest surviving score for Retry-After.
//
// KEYS[1] = sorted-set key
// ARGV[1] = now (ms)
// ARGV[2] = window (ms)
// ARGV[3] = max
// ARGV[4] = member (unique per request, e.g. now:rand)
//
// Returns {allowed (0/1), remaining, oldestScoreOrNow}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count >= max then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local oldestScore = now
  if oldest[2] ~= nil then
    oldestScore = tonumber(oldest[2])
  end
  return {0, 0, oldestScore}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, max - count - 1, now}
`)

// Result is what a Check call reports.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter checks subjects against a fixed set of configured Kinds.
type Limiter struct {
	client *redis.Client
	rules  map[Kind]Rule
	log    zerolog.Logger
}

func New(client *redis.Client, log zerolog.Logger) *Limiter {
	return &Limiter{client: client, rules: DefaultRules, log: log}
}

// WithRules overrides the default kind table, primarily for tests.
func (l *Limiter) WithRules(rules map[Kind]Rule) *Limiter {
	clone := *l
	clone.rules = rules
	return &clone
}

// Check runs the atomic Lua script for kind/subject. On any Lua/Redis
// error, it fails open (allows the request) and logs at WARN, per §4.D.
func (l *Limiter) Check(ctx context.Context, kind Kind, subject string) (Result, error) {
	rule, ok := l.rules[kind]
	if !ok {
		return Result{}, fmt.Errorf("ratelimit: unknown kind %q", kind)
	}

	key := fmt.Sprintf("ratelimit:%s:%s", kind, subject)
	now := time.Now()
	nowMs := now.UnixMilli()
	windowMs := rule.Window.Milliseconds()
	member := fmt.Sprintf("%d:%s", nowMs, uuid.NewString())

	res, err := slidingWindowScript.Run(ctx, l.client, []string{key}, nowMs, windowMs, rule.Max, member).Result()
	if err != nil {
		l.log.Warn().Err(err).Str("kind", string(kind)).Str("subject", subject).Msg("ratelimit: lua script failed, failing open")
		return Result{Allowed: true, Remaining: rule.Max - 1, ResetAt: now.Add(rule.Window)}, nil
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		l.log.Warn().Str("kind", string(kind)).Msg("ratelimit: unexpected lua result shape, failing open")
		return Result{Allowed: true, Remaining: rule.Max - 1, ResetAt: now.Add(rule.Window)}, nil
	}

	allowed := toInt64(vals[0]) == 1
	remaining := int(toInt64(vals[1]))
	scoreMs := toInt64(vals[2])

	if allowed {
		return Result{
			Allowed:   true,
			Remaining: remaining,
			ResetAt:   now.Add(rule.Window),
		}, nil
	}

	resetAt := time.UnixMilli(scoreMs).Add(rule.Window)
	retryAfter := time.Until(resetAt)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Result{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
