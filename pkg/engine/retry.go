package engine

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds how a single fallible unit of work is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first.
	// Values below 1 are treated as 1 (no retries).
	MaxAttempts int

	// Delays is the ordered inter-attempt delay sequence. Attempts beyond
	// the sequence length reuse the last entry.
	Delays []time.Duration

	// OnRetry, if set, is invoked with the 1-based attempt number and the
	// failure before each retry sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy returns the bounded policy used for batch mutations:
// three attempts with increasing delays.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delays: []time.Duration{
			250 * time.Millisecond,
			500 * time.Millisecond,
			1 * time.Second,
		},
	}
}

// attempts returns the effective attempt budget.
func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// delayFor returns the delay to apply after the given 1-based attempt,
// clamped to the last configured delay when attempts outrun the sequence.
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt > len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[attempt-1]
}

// UnitOfWork is one fallible operation driven by the retry engine.
type UnitOfWork[T any] func(ctx context.Context) (T, error)

// RetryWithBackoff calls the unit of work immediately and returns on the
// first success with no delay. On failure it invokes the policy observer,
// sleeps the configured delay and retries, up to the policy's attempt
// budget. After exhausting the budget it fails with an error stating the
// number of attempts made, preserving the last underlying failure.
//
// Panics inside the unit of work are recovered and normalized into errors
// so that a misbehaving applier is retried and reported like any other
// failure instead of tearing down the operation.
func RetryWithBackoff[T any](ctx context.Context, work UnitOfWork[T], policy RetryPolicy) (T, error) {
	value, _, err := retryWithBackoff(ctx, work, policy)
	return value, err
}

// retryWithBackoff is the retry loop behind RetryWithBackoff. It additionally
// reports the number of calls actually made, which the fan-out layer records
// on failure markers; an abort on context cancellation consumes fewer calls
// than the policy budget.
func retryWithBackoff[T any](ctx context.Context, work UnitOfWork[T], policy RetryPolicy) (T, int, error) {
	var zero T
	var lastErr error

	max := policy.attempts()
	for attempt := 1; attempt <= max; attempt++ {
		value, err := runUnit(ctx, work)
		if err == nil {
			return value, attempt, nil
		}
		lastErr = err

		if attempt == max {
			break
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}

		delay := policy.delayFor(attempt)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, attempt, ctx.Err()
			}
		} else if ctx.Err() != nil {
			return zero, attempt, ctx.Err()
		}
	}

	return zero, max, fmt.Errorf("Failed after %d attempts: %w", max, lastErr)
}

// runUnit invokes the unit of work, converting panics into errors.
func runUnit[T any](ctx context.Context, work UnitOfWork[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("unit of work panicked: %w", rerr)
				return
			}
			err = fmt.Errorf("unit of work panicked: %v", r)
		}
	}()
	return work(ctx)
}
