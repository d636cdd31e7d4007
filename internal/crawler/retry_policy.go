package crawler

import (
	"context"
	"errors"
	"time"
)

// LinearRetryPolicy waits attempt*step between attempts. Used for page
// loads, where the portal tends to recover after a short, growing pause.
type LinearRetryPolicy struct {
	maxAttempts int
	step        time.Duration
}

// NewLinearRetryPolicy builds a linear-backoff policy. Non-positive inputs
// fall back to 3 attempts with a 2s step.
func NewLinearRetryPolicy(maxAttempts int, step time.Duration) *LinearRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if step <= 0 {
		step = 2 * time.Second
	}
	return &LinearRetryPolicy{maxAttempts: maxAttempts, step: step}
}

// ShouldRetry reports whether another attempt is allowed. Cancellation is
// never retried; timeouts are, until the attempt budget runs out.
func (p *LinearRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return attempt < p.maxAttempts
}

// Backoff returns the wait before the given (1-based) attempt's retry.
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * p.step
}

// FixedRetryPolicy waits a constant delay between attempts. Used for file
// transfers, where backing off further buys nothing.
type FixedRetryPolicy struct {
	maxAttempts int
	delay       time.Duration
}

// NewFixedRetryPolicy builds a fixed-delay policy. Non-positive inputs fall
// back to 3 attempts with a 1s delay.
func NewFixedRetryPolicy(maxAttempts int, delay time.Duration) *FixedRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if delay <= 0 {
		delay = time.Second
	}
	return &FixedRetryPolicy{maxAttempts: maxAttempts, delay: delay}
}

// ShouldRetry reports whether another attempt is allowed.
func (p *FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return attempt < p.maxAttempts
}

// Backoff returns the constant inter-attempt delay.
func (p *FixedRetryPolicy) Backoff(int) time.Duration {
	return p.delay
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
