package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Batch size bounds and growth policy. The scheduler starts at the ceiling,
// collapses to the floor on any batch with a failure, and doubles back
// toward the ceiling after three consecutive clean batches.
const (
	// BatchFloor is the minimum batch size.
	BatchFloor = 25

	// BatchCeiling is the maximum and initial batch size.
	BatchCeiling = 100

	// batchGrowthThreshold is the number of consecutive zero-failure batches
	// required before the batch size grows.
	batchGrowthThreshold = 3
)

// MutateFunc applies the replacement to a single element. It is the
// injected mutation operation; the scheduler knows nothing about documents.
type MutateFunc func(ctx context.Context, element ElementRef) error

// BoundaryFunc is invoked after every batch boundary with the derived
// progress projection.
type BoundaryFunc func(progress Progress)

// BatchScheduler drives an affected-element sequence to completion in
// right-sized, resilient batches. Batches run strictly in sequence; mutation
// attempts within a batch are dispatched concurrently and the boundary is a
// full synchronization point.
type BatchScheduler struct {
	mutate  MutateFunc
	policy  RetryPolicy
	ledger  *FailureLedger
	metrics MetricsRecorder
	logger  zerolog.Logger
}

// NewBatchScheduler creates a scheduler around the injected mutation
// operation and retry policy. The ledger accumulates element failures across
// all batches of one operation.
func NewBatchScheduler(mutate MutateFunc, policy RetryPolicy, ledger *FailureLedger, logger zerolog.Logger) *BatchScheduler {
	return &BatchScheduler{
		mutate: mutate,
		policy: policy,
		ledger: ledger,
		logger: logger.With().Str("component", "batch-scheduler").Logger(),
	}
}

// SetMetrics installs an optional measurement sink for batch outcomes,
// element outcomes and retries. A nil sink disables measurement.
func (s *BatchScheduler) SetMetrics(metrics MetricsRecorder) {
	s.metrics = metrics
}

// Run processes the full element sequence batch by batch and returns the
// final cursor state. Per-element failures are ledgered and never abort the
// operation; only a catastrophic internal error (not a per-element failure)
// returns a non-nil error, and the cursor reflects the work done before it.
func (s *BatchScheduler) Run(ctx context.Context, elements []ElementRef, onBoundary BoundaryFunc) (*BatchState, error) {
	state := &BatchState{
		BatchSize: BatchCeiling,
		Total:     len(elements),
	}

	if s.mutate == nil {
		return state, NewPermanentError("no mutation operation injected", nil).
			WithKind(ErrorKindProcessing)
	}

	policy := s.policy
	if s.metrics != nil {
		observer := policy.OnRetry
		policy.OnRetry = func(attempt int, err error) {
			s.metrics.RecordRetryAttempt()
			if observer != nil {
				observer(attempt, err)
			}
		}
	}

	batchIndex := 0
	for state.Remaining() > 0 {
		size := state.BatchSize
		if remaining := state.Remaining(); remaining < size {
			size = remaining
		}
		batch := elements[state.Processed : state.Processed+size]
		batchIndex++

		started := time.Now()
		failures, err := s.applyBatch(ctx, batch, policy)
		if err != nil {
			return state, err
		}

		state.Processed += len(batch)
		for _, f := range failures {
			state.Failures = append(state.Failures, f)
			s.ledger.Append(f)
		}

		if s.metrics != nil {
			s.metrics.RecordBatch(len(batch), len(failures), time.Since(started))
			s.metrics.RecordElementOutcomes(len(batch)-len(failures), len(failures))
		}

		// Re-evaluate batch size at the boundary only.
		if len(failures) > 0 {
			state.BatchSize = BatchFloor
			state.CleanStreak = 0
			s.logger.Warn().
				Int("batch", batchIndex).
				Int("failures", len(failures)).
				Int("batch_size", state.BatchSize).
				Msg("Batch had failures, shrinking batch size")
		} else {
			state.CleanStreak++
			if state.CleanStreak >= batchGrowthThreshold {
				if state.BatchSize < BatchCeiling {
					grown := state.BatchSize * 2
					if grown > BatchCeiling {
						grown = BatchCeiling
					}
					state.BatchSize = grown
					s.logger.Info().
						Int("batch", batchIndex).
						Int("batch_size", state.BatchSize).
						Msg("Sustained success, growing batch size")
				}
				state.CleanStreak = 0
			}
		}

		if onBoundary != nil {
			onBoundary(ProgressFrom(state, batchIndex))
		}
	}

	return state, nil
}

// applyBatch applies the mutation to every element of one batch through the
// fan-out retry engine and converts marker slots into failure records. An
// unexpected internal panic is catastrophic and is returned as an error
// rather than absorbed.
func (s *BatchScheduler) applyBatch(ctx context.Context, batch []ElementRef, policy RetryPolicy) (failures []FailedElement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPermanentError(fmt.Sprintf("batch processing failed internally: %v", r), nil).
				WithKind(ErrorKindProcessing)
		}
	}()

	units := make([]UnitOfWork[string], len(batch))
	for i, element := range batch {
		el := element
		units[i] = func(ctx context.Context) (string, error) {
			if err := s.mutate(ctx, el); err != nil {
				return "", err
			}
			return el.ID, nil
		}
	}

	results := BatchRetry(ctx, units, policy)

	for i, result := range results {
		if !IsRetryFailure(result) {
			continue
		}
		marker := result.(RetryFailure)
		failures = append(failures, FailedElement{
			ElementID:   batch[i].ID,
			ElementName: batch[i].Name,
			Reason:      marker.Error,
			Attempts:    marker.Attempts,
		})
		s.logger.Debug().
			Str("element_id", batch[i].ID).
			Int("attempts", marker.Attempts).
			Str("reason", marker.Error).
			Msg("Element exhausted retries")
	}

	return failures, nil
}
