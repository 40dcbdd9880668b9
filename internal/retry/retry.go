// Package retry provides the reusable retry policy applied to upstream
// market-data fetches: exponential backoff with jitter, a hard attempt cap,
// and a timeout per individual attempt.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how an operation is retried. The zero value is not usable;
// construct one from configuration.
type Policy struct {
	MaxAttempts    int           // Total attempts including the first
	Base           time.Duration // Initial backoff interval
	Cap            time.Duration // Upper bound on a single backoff interval
	Jitter         float64       // Randomization factor, 0..1
	AttemptTimeout time.Duration // Per-attempt deadline; 0 disables
}

// Permanent marks an error as non-retryable; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op under the policy. The context bounds the whole sequence including
// backoff sleeps, so a caller-level deadline budget cuts retries short. The
// returned error is the last attempt's error wrapped with the attempt count,
// or ctx.Err() if the budget expired first.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := 0

	wrapped := func() error {
		attempts++
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}
		return op(attemptCtx)
	}

	// MaxAttempts below 1 would underflow the unsigned retry cap.
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := backoff.WithContext(p.newBackOff(), ctx)
	err := backoff.Retry(wrapped, backoff.WithMaxRetries(b, uint64(maxAttempts-1)))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("retry budget exhausted after %d attempts: %w", attempts, err)
		}
		return fmt.Errorf("failed after %d attempts: %w", attempts, err)
	}
	return nil
}

func (p Policy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.MaxInterval = p.Cap
	b.RandomizationFactor = p.Jitter
	b.Multiplier = 2
	// Attempt count is the only stop condition; elapsed time is governed by ctx.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
