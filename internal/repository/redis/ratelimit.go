package redisrepo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// luaAllow trims hits older than the window and records a new one only if
// the subject is still under its limit, so rejected calls never extend a
// block.
// KEYS[1] = key
// ARGV[1] = now_ms
// ARGV[2] = window_ms
// ARGV[3] = limit
// ARGV[4] = member
const luaAllow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then retry = tonumber(oldest[2]) + window - now end
  if retry < 1 then retry = 1 end
  return {0, 0, retry}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, limit - count - 1, 0}
`

// Rule caps the hits a single subject may make within Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter applies a sliding-window Rule per scope. Subjects are hashed
// before they reach redis, so emails never appear in key names.
type Limiter struct {
	rdb    *redis.Client
	rules  map[string]Rule
	script *redis.Script
	now    func() time.Time
}

func NewLimiter(rdb *redis.Client, rules map[string]Rule) (*Limiter, error) {
	const op = "redisrepo.NewLimiter"

	for scope, r := range rules {
		if r.Limit <= 0 || r.Window < time.Millisecond {
			return nil, fmt.Errorf("%s: scope %q: limit and window must be positive", op, scope)
		}
	}

	return &Limiter{
		rdb:    rdb,
		rules:  rules,
		script: redis.NewScript(luaAllow),
		now:    time.Now,
	}, nil
}

func (l *Limiter) Rule(scope string) (Rule, bool) {
	r, ok := l.rules[scope]
	return r, ok
}

// Allow records a hit by subject under scope. A scope without a rule is
// not limited.
func (l *Limiter) Allow(ctx context.Context, scope, subject string) (Decision, error) {
	const op = "redisrepo.Limiter.Allow"

	rule, ok := l.rules[scope]
	if !ok {
		return Decision{Allowed: true}, nil
	}

	res, err := l.script.Run(ctx, l.rdb,
		[]string{KeyRateLimit(scope, subjectHash(subject))},
		l.now().UnixMilli(), rule.Window.Milliseconds(), rule.Limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%s:%w", op, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%s: unexpected script result %v", op, res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

func subjectHash(subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:12])
}
