// Package ratelimit paces task submission with a token bucket kept in Redis,
// so concurrent enqueue runs against one queue share a single budget.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "pixelbatch:throttle"

// takeScript refills the bucket for the elapsed time and takes one token if
// available. It returns {taken, tokens left, wait ms}.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local per_ms = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now

tokens = math.min(capacity, tokens + math.max(0, now - ts) * per_ms)

local taken = 0
local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
  taken = 1
else
  wait = math.ceil((1 - tokens) / per_ms)
end

redis.call("HSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, ttl)
return {taken, math.floor(tokens), wait}
`)

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Throttle admits at most perSecond submissions per second per subject.
type Throttle struct {
	client    redis.Scripter
	capacity  int64
	perMS     float64
	ttl       time.Duration
	keyPrefix string
	now       func() time.Time
}

func NewThrottle(client redis.Scripter, perSecond int, keyPrefix string) (*Throttle, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if perSecond <= 0 {
		return nil, fmt.Errorf("rate must be positive")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &Throttle{
		client:    client,
		capacity:  int64(perSecond),
		perMS:     float64(perSecond) / 1000,
		ttl:       2 * time.Second,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

func (t *Throttle) Allow(ctx context.Context, subject string) (Decision, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "default"
	}

	raw, err := takeScript.Run(ctx, t.client,
		[]string{t.keyPrefix + ":" + subject},
		t.capacity, t.perMS, t.now().UTC().UnixMilli(), t.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run throttle script: %w", err)
	}
	return parseDecision(raw)
}

// Wait blocks until a token for subject is taken or ctx ends.
func (t *Throttle) Wait(ctx context.Context, subject string) error {
	for {
		d, err := t.Allow(ctx, subject)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}

		timer := time.NewTimer(max(d.RetryAfter, time.Millisecond))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func parseDecision(raw any) (Decision, error) {
	values, ok := raw.([]any)
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("invalid throttle response %v", raw)
	}

	var nums [3]int64
	for i, v := range values {
		n, err := toInt64(v)
		if err != nil {
			return Decision{}, fmt.Errorf("parse throttle response: %w", err)
		}
		nums[i] = n
	}

	return Decision{
		Allowed:    nums[0] == 1,
		Remaining:  nums[1],
		RetryAfter: time.Duration(nums[2]) * time.Millisecond,
	}, nil
}

func toInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", in)
	}
}
