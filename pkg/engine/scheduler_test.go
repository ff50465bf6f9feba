package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func makeElements(n int) []ElementRef {
	elements := make([]ElementRef, n)
	for i := range elements {
		elements[i] = ElementRef{
			ID:   fmt.Sprintf("el-%03d", i+1),
			Name: fmt.Sprintf("Element %d", i+1),
		}
	}
	return elements
}

// failingMutator fails every attempt for the configured element IDs.
type failingMutator struct {
	mu      sync.Mutex
	failIDs map[string]bool
	applied []string
}

func (m *failingMutator) mutate(ctx context.Context, element ElementRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs[element.ID] {
		return errors.New("permission denied")
	}
	m.applied = append(m.applied, element.ID)
	return nil
}

func schedPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delays: []time.Duration{time.Millisecond}}
}

func TestSchedulerAllSuccess(t *testing.T) {
	// 150 elements, no failures: one full batch of 100 and a partial of 50.
	mutator := &failingMutator{}
	scheduler := NewBatchScheduler(mutator.mutate, schedPolicy(), NewFailureLedger(), zerolog.Nop())

	var boundaries []Progress
	state, err := scheduler.Run(context.Background(), makeElements(150), func(p Progress) {
		boundaries = append(boundaries, p)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.Processed != 150 || state.Total != 150 {
		t.Errorf("expected 150/150 processed, got %d/%d", state.Processed, state.Total)
	}
	if len(state.Failures) != 0 {
		t.Errorf("expected no failures, got %d", len(state.Failures))
	}
	if len(boundaries) != 2 {
		t.Fatalf("expected 2 progress reports, got %d", len(boundaries))
	}
	if boundaries[0].Processed != 100 || boundaries[0].Percent != 66 {
		t.Errorf("first boundary: processed=%d percent=%d, want 100/66",
			boundaries[0].Processed, boundaries[0].Percent)
	}
	if boundaries[1].Processed != 150 || boundaries[1].Percent != 100 {
		t.Errorf("second boundary: processed=%d percent=%d, want 150/100",
			boundaries[1].Processed, boundaries[1].Percent)
	}

	result := BuildResult(state.Total, state.Failures, nil, time.Second)
	if !result.Success || result.UpdatedCount != 150 || result.FailedCount != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSchedulerShrinksOnFailure(t *testing.T) {
	// 120 elements with exactly one exhausting retries: the first batch of
	// 100 records one failure and the size collapses to the floor for the
	// remaining 20.
	mutator := &failingMutator{failIDs: map[string]bool{"el-050": true}}
	scheduler := NewBatchScheduler(mutator.mutate, schedPolicy(), NewFailureLedger(), zerolog.Nop())

	var boundaries []Progress
	state, err := scheduler.Run(context.Background(), makeElements(120), func(p Progress) {
		boundaries = append(boundaries, p)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(boundaries) != 2 {
		t.Fatalf("expected 2 progress reports, got %d", len(boundaries))
	}
	if boundaries[0].BatchSize != BatchFloor {
		t.Errorf("batch size after failure = %d, want floor %d", boundaries[0].BatchSize, BatchFloor)
	}
	if boundaries[0].Failed != 1 {
		t.Errorf("first boundary failed=%d, want 1", boundaries[0].Failed)
	}
	if state.Processed != 120 {
		t.Errorf("processed %d, want 120: a failing batch must not abort the operation", state.Processed)
	}

	if len(state.Failures) != 1 {
		t.Fatalf("expected 1 failure record, got %d", len(state.Failures))
	}
	failure := state.Failures[0]
	if failure.ElementID != "el-050" || failure.Attempts != 3 {
		t.Errorf("unexpected failure record: %+v", failure)
	}

	result := BuildResult(state.Total, state.Failures, nil, time.Second)
	if result.UpdatedCount != 119 || result.FailedCount != 1 || !result.HasWarnings {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSchedulerGrowthPolicy(t *testing.T) {
	// One failing batch collapses to the floor; three consecutive clean
	// batches double the size, stepwise back to the ceiling.
	// Layout: 100 (1 failure) + 25+25+25 + 50+50+50 + 100 = 425 elements.
	mutator := &failingMutator{failIDs: map[string]bool{"el-001": true}}
	scheduler := NewBatchScheduler(mutator.mutate, schedPolicy(), NewFailureLedger(), zerolog.Nop())

	var sizes []int
	state, err := scheduler.Run(context.Background(), makeElements(425), func(p Progress) {
		if p.BatchSize < BatchFloor || p.BatchSize > BatchCeiling {
			t.Errorf("batch size %d escaped [%d,%d]", p.BatchSize, BatchFloor, BatchCeiling)
		}
		sizes = append(sizes, p.BatchSize)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Processed != 425 {
		t.Fatalf("processed %d, want 425", state.Processed)
	}

	want := []int{25, 25, 25, 50, 50, 50, 100, 100}
	if len(sizes) != len(want) {
		t.Fatalf("expected %d batches, got %d (%v)", len(want), len(sizes), sizes)
	}
	for i, size := range want {
		if sizes[i] != size {
			t.Errorf("batch %d: next size %d, want %d (full sequence %v)", i+1, sizes[i], size, sizes)
		}
	}
}

func TestSchedulerNeverDecreasesAfterCleanBatch(t *testing.T) {
	mutator := &failingMutator{}
	scheduler := NewBatchScheduler(mutator.mutate, schedPolicy(), NewFailureLedger(), zerolog.Nop())

	last := BatchCeiling
	_, err := scheduler.Run(context.Background(), makeElements(350), func(p Progress) {
		if p.Failed == 0 && p.BatchSize < last {
			t.Errorf("batch size decreased from %d to %d after a clean batch", last, p.BatchSize)
		}
		last = p.BatchSize
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// recordingMetrics implements MetricsRecorder, capturing every callback.
type recordingMetrics struct {
	mu           sync.Mutex
	batchSizes   []int
	batchFails   []int
	updated      int
	failed       int
	retries      int
	staleSignals []string
}

func (r *recordingMetrics) RecordBatch(size, failures int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batchSizes = append(r.batchSizes, size)
	r.batchFails = append(r.batchFails, failures)
}

func (r *recordingMetrics) RecordElementOutcomes(updated, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated += updated
	r.failed += failed
}

func (r *recordingMetrics) RecordRetryAttempt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

func (r *recordingMetrics) RecordStaleSignal(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staleSignals = append(r.staleSignals, documentID)
}

func TestSchedulerRecordsMetrics(t *testing.T) {
	// 120 elements with one exhausting retries: two batches (100 + 20), one
	// failed outcome, and two retries for the failing element.
	mutator := &failingMutator{failIDs: map[string]bool{"el-050": true}}
	scheduler := NewBatchScheduler(mutator.mutate, schedPolicy(), NewFailureLedger(), zerolog.Nop())

	metrics := &recordingMetrics{}
	scheduler.SetMetrics(metrics)

	state, err := scheduler.Run(context.Background(), makeElements(120), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Processed != 120 {
		t.Fatalf("processed %d, want 120", state.Processed)
	}

	if len(metrics.batchSizes) != 2 || metrics.batchSizes[0] != 100 || metrics.batchSizes[1] != 20 {
		t.Errorf("recorded batch sizes %v, want [100 20]", metrics.batchSizes)
	}
	if len(metrics.batchFails) != 2 || metrics.batchFails[0] != 1 || metrics.batchFails[1] != 0 {
		t.Errorf("recorded batch failures %v, want [1 0]", metrics.batchFails)
	}
	if metrics.updated != 119 || metrics.failed != 1 {
		t.Errorf("recorded outcomes updated=%d failed=%d, want 119/1", metrics.updated, metrics.failed)
	}
	if metrics.retries != 2 {
		t.Errorf("recorded %d retries, want 2 (3 attempts for one element)", metrics.retries)
	}
}

func TestSchedulerCleanStreakBoundedAtCeiling(t *testing.T) {
	// At the ceiling there is nothing to grow into; the streak must still
	// reset at the growth threshold instead of counting up forever.
	mutator := &failingMutator{}
	scheduler := NewBatchScheduler(mutator.mutate, schedPolicy(), NewFailureLedger(), zerolog.Nop())

	state, err := scheduler.Run(context.Background(), makeElements(BatchCeiling*8), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.CleanStreak >= batchGrowthThreshold {
		t.Errorf("clean streak %d escaped the growth threshold %d", state.CleanStreak, batchGrowthThreshold)
	}
}

func TestSchedulerMissingMutatorIsCatastrophic(t *testing.T) {
	scheduler := NewBatchScheduler(nil, schedPolicy(), NewFailureLedger(), zerolog.Nop())

	_, err := scheduler.Run(context.Background(), makeElements(10), nil)
	if err == nil {
		t.Fatal("expected catastrophic error")
	}
	if KindOf(err) != ErrorKindProcessing {
		t.Errorf("expected processing error kind, got %s", KindOf(err))
	}
}

func TestSchedulerPanickingMutatorIsLedgered(t *testing.T) {
	// A panic inside the mutation is a per-element failure, not a
	// catastrophic one: siblings and later batches proceed.
	mutate := func(ctx context.Context, element ElementRef) error {
		if element.ID == "el-003" {
			panic("detached element")
		}
		return nil
	}
	scheduler := NewBatchScheduler(mutate, schedPolicy(), NewFailureLedger(), zerolog.Nop())

	state, err := scheduler.Run(context.Background(), makeElements(30), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Processed != 30 {
		t.Errorf("processed %d, want 30", state.Processed)
	}
	if len(state.Failures) != 1 || state.Failures[0].ElementID != "el-003" {
		t.Errorf("expected exactly el-003 ledgered, got %+v", state.Failures)
	}
}

func TestSchedulerEmptySequence(t *testing.T) {
	mutator := &failingMutator{}
	scheduler := NewBatchScheduler(mutator.mutate, schedPolicy(), NewFailureLedger(), zerolog.Nop())

	boundaries := 0
	state, err := scheduler.Run(context.Background(), nil, func(p Progress) { boundaries++ })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Total != 0 || state.Processed != 0 || boundaries != 0 {
		t.Errorf("empty sequence should be a no-op, got %+v with %d boundaries", state, boundaries)
	}
}
