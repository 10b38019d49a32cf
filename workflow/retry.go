package workflow

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/BaSui01/hubflow/types"
)

// normalize fills in sane values for zero or out-of-range policy fields.
func (p *RetryPolicy) normalize() *RetryPolicy {
	out := *p
	if out.MaxAttempts < 1 {
		out.MaxAttempts = 1
	}
	if out.Delay <= 0 {
		out.Delay = 100 * time.Millisecond
	}
	if out.Multiplier < 1.0 {
		out.Multiplier = 2.0
	}
	return &out
}

// nextDelay computes the backoff delay before retry attempt n (1-based:
// n=1 is the delay after the first failure). Exponential growth with an
// optional cap and jitter.
func (p *RetryPolicy) nextDelay(n int) time.Duration {
	delay := float64(p.Delay) * math.Pow(p.Multiplier, float64(n-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		// Random in [delay/2, delay).
		delay = delay/2 + rand.Float64()*delay/2
	}
	return time.Duration(delay)
}

// shouldRetry reports whether a failed attempt may be retried under this
// policy. Cancellation is never retryable; step timeouts are; anything else
// follows the error's retryable flag unless the policy retries all failures.
func (p *RetryPolicy) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if types.GetErrorCode(err) == types.ErrStepTimeout {
		return true
	}
	if p.RetryAll {
		return true
	}
	return types.IsRetryable(err)
}

// sleepRetry waits for the backoff delay, aborting early if ctx is cancelled.
func sleepRetry(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
