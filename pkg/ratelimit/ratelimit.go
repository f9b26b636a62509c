// Package ratelimit provides token-bucket byte budgets for transfers.
// One Limiter exists per library; every session bound to the library shares
// it, for both directions.
package ratelimit

import (
	"context"
	"time"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
	"golang.org/x/time/rate"
)

// Limiter is a token-bucket limiter over bytes per second. The bucket
// capacity equals one second of the configured rate; refill is continuous.
// A nil *Limiter is a no-op, which is how an unbounded (rate 0) library is
// represented.
type Limiter struct {
	bucket *rate.Limiter
	burst  int
}

// New creates a Limiter for the given byte rate. Returns nil when
// bytesPerSec is 0, meaning unbounded.
func New(bytesPerSec uint64) *Limiter {
	if bytesPerSec == 0 {
		return nil
	}
	burst := int(bytesPerSec)
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		burst:  burst,
	}
}

// Consume blocks until n tokens are available, honoring ctx cancellation.
// Requests larger than the bucket capacity are split so chunks bigger than
// one second of budget still pass, paced across multiple refills.
//
// Cancellation returns a transport error: the session is going away and the
// caller must not continue the transfer.
func (l *Limiter) Consume(ctx context.Context, n int) error {
	if l == nil || n <= 0 {
		return nil
	}
	for n > 0 {
		take := n
		if take > l.burst {
			take = l.burst
		}
		if err := l.bucket.WaitN(ctx, take); err != nil {
			if ctx.Err() != nil {
				return harbor.E(harbor.KindTransport, "rate limit wait", ctx.Err())
			}
			return harbor.E(harbor.KindRateLimited, "rate limit wait", err)
		}
		n -= take
	}
	return nil
}

// Allow reports whether n tokens are immediately available, consuming them
// if so. Used by tests to assert bucket behavior.
func (l *Limiter) Allow(n int) bool {
	if l == nil {
		return true
	}
	return l.bucket.AllowN(time.Now(), n)
}

// Rate returns the configured bytes per second, 0 for a no-op limiter.
func (l *Limiter) Rate() uint64 {
	if l == nil {
		return 0
	}
	return uint64(l.bucket.Limit())
}
