package engine

import (
	"context"
	"sync"
)

// RetryFailure is the failure marker placed in a result slot when a unit of
// work exhausts its retry budget. It stands in for the missing value so that
// the result sequence stays ordered and siblings are never aborted.
type RetryFailure struct {
	// Failed is always true for a genuine marker.
	Failed bool `json:"failed"`

	// Error is the stringified final failure.
	Error string `json:"error"`

	// Attempts is the number of calls consumed before giving up.
	Attempts int `json:"attempts"`
}

// IsRetryFailure is a precise discriminator for failure markers. It returns
// true only for RetryFailure values (or pointers to them) with Failed set,
// and false for nil, primitives, and any other shape. Callers use it to
// split successes from failures without inspecting errors.
func IsRetryFailure(v interface{}) bool {
	switch m := v.(type) {
	case RetryFailure:
		return m.Failed
	case *RetryFailure:
		return m != nil && m.Failed
	default:
		return false
	}
}

// BatchRetry applies the retry engine independently to each unit of work and
// returns one result slot per unit, preserving input order regardless of
// which unit resolves first. A slot holds either the unit's value or a
// RetryFailure marker; one unit exhausting its retries never aborts its
// siblings.
//
// Units are dispatched concurrently, with in-flight count bounded by the
// batch size. BatchRetry returns only after every unit has resolved, so a
// caller observing the result sees a fully synchronized batch boundary.
func BatchRetry[T any](ctx context.Context, units []UnitOfWork[T], policy RetryPolicy) []interface{} {
	results := make([]interface{}, len(units))

	var wg sync.WaitGroup
	for i, unit := range units {
		wg.Add(1)
		go func(slot int, work UnitOfWork[T]) {
			defer wg.Done()

			value, attempts, err := retryWithBackoff(ctx, work, policy)
			if err != nil {
				results[slot] = RetryFailure{
					Failed:   true,
					Error:    err.Error(),
					Attempts: attempts,
				}
				return
			}
			results[slot] = value
		}(i, unit)
	}
	wg.Wait()

	return results
}
