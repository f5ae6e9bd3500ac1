package ratelimit

import "context"

// RateLimiter bounds outbound provider call throughput per scope.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
