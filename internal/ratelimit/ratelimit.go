// Package ratelimit paces outbound node calls so a keeper stays inside
// its RPC provider's plan.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by all node calls a gateway makes.
type Limiter struct {
	bucket *rate.Limiter
}

// New allows rps sustained calls per second with the given burst.
// A zero or negative rps disables pacing entirely.
func New(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return &Limiter{bucket: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a call may proceed or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}
