package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/veloramarket/push-engine/internal/ratelimit"
)

const (
	defaultQuotaPerSec int64 = 100
	quotaKeyPrefix           = "push:quota"

	// Counter keys outlive their one-second window by a second so that
	// instances with slightly skewed clocks never see a dropped counter.
	windowTTLSeconds = 2

	minWindowWait = 5 * time.Millisecond
)

// usageScript counts one provider call against the current window and
// returns the running total. The allowed/denied decision stays on the Go
// side so the script never needs the quota as an argument.
var usageScript = goredis.NewScript(`
local used = redis.call("INCR", KEYS[1])
if used == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return used
`)

var _ ratelimit.RateLimiter = (*QuotaLimiter)(nil)

// QuotaLimiter enforces a per-second budget of outbound provider calls,
// shared across engine instances through a Redis counter. Every scope draws
// from its own budget, keyed by the current second, so the full quota comes
// back on each window boundary.
type QuotaLimiter struct {
	client *goredis.Client
	perSec int64
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	script *goredis.Script
}

func NewQuotaLimiter(client *goredis.Client, perSec int) (*QuotaLimiter, error) {
	return newQuotaLimiter(
		client,
		int64(perSec),
		time.Now,
		sleepWithContext,
	)
}

func newQuotaLimiter(
	client *goredis.Client,
	perSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*QuotaLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if perSec <= 0 {
		perSec = defaultQuotaPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &QuotaLimiter{
		client: client,
		perSec: perSec,
		now:    nowFn,
		sleep:  sleepFn,
		script: usageScript,
	}, nil
}

// Allow draws one call from the scope's budget for the current window.
func (q *QuotaLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	if q == nil || q.client == nil || q.script == nil {
		return false, fmt.Errorf("quota limiter is not initialized")
	}

	key, err := q.windowKey(scope)
	if err != nil {
		return false, err
	}

	if ctx == nil {
		ctx = context.Background()
	}

	used, err := q.script.Run(ctx, q.client, []string{key}, windowTTLSeconds).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to count quota usage: %w", err)
	}

	return used <= q.perSec, nil
}

// Wait blocks until the scope's budget admits a call or the context ends.
// An exhausted window cannot recover before it rolls over, so the wait
// targets the next window boundary instead of polling blindly.
func (q *QuotaLimiter) Wait(ctx context.Context, scope string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		allowed, err := q.Allow(ctx, scope)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := q.sleep(ctx, q.untilNextWindow()); err != nil {
			return err
		}
	}
}

func (q *QuotaLimiter) untilNextWindow() time.Duration {
	now := q.now()
	wait := now.Truncate(time.Second).Add(time.Second).Sub(now)
	if wait < minWindowWait {
		wait = minWindowWait
	}
	return wait
}

func (q *QuotaLimiter) windowKey(scope string) (string, error) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		return "", fmt.Errorf("quota scope is required")
	}
	return fmt.Sprintf("%s:%s:%d", quotaKeyPrefix, scope, q.now().UTC().Unix()), nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
