// Package ratelimit counts failed attempts per key in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const failLua = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

// AttemptLimiter is a fixed-window failure counter. The window starts on the
// first failure and the counter is dropped when it elapses or on Reset.
// A nil *AttemptLimiter allows everything.
type AttemptLimiter struct {
	rdb    *redis.Client
	prefix string
	max    int
	window time.Duration
	logger *slog.Logger
	script *redis.Script
}

func NewAttemptLimiter(rdb *redis.Client, logger *slog.Logger, prefix string, max int, window time.Duration) *AttemptLimiter {
	if prefix == "" {
		prefix = "esigned:attempts"
	}
	return &AttemptLimiter{
		rdb:    rdb,
		prefix: prefix,
		max:    max,
		window: window,
		logger: logger,
		script: redis.NewScript(failLua),
	}
}

func (l *AttemptLimiter) enabled() bool {
	return l != nil && l.rdb != nil && l.max > 0 && l.window > 0
}

func (l *AttemptLimiter) key(k string) string {
	return l.prefix + ":" + k
}

// Allow reports whether key still has attempts left in the current window.
func (l *AttemptLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if !l.enabled() {
		return true, nil
	}
	n, err := l.rdb.Get(ctx, l.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read attempts: %w", err)
	}
	return n < l.max, nil
}

// Fail records a failed attempt and returns the count in the current window.
func (l *AttemptLimiter) Fail(ctx context.Context, key string) (int, error) {
	if !l.enabled() {
		return 0, nil
	}
	n, err := l.script.Run(ctx, l.rdb, []string{l.key(key)}, l.window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("record attempt: %w", err)
	}
	if n >= l.max && l.logger != nil {
		l.logger.Warn("attempt limit reached", slog.String("key", key), slog.Int("attempts", n))
	}
	return n, nil
}

func (l *AttemptLimiter) Reset(ctx context.Context, key string) error {
	if !l.enabled() {
		return nil
	}
	if err := l.rdb.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}
