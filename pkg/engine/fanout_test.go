package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestBatchRetryPreservesOrder(t *testing.T) {
	// Later units resolve first; the result order must still match input order.
	units := make([]UnitOfWork[int], 10)
	for i := range units {
		idx := i
		units[idx] = func(ctx context.Context) (int, error) {
			time.Sleep(time.Duration(10-idx) * time.Millisecond)
			return idx, nil
		}
	}

	results := BatchRetry(context.Background(), units, fastPolicy(1))

	if len(results) != len(units) {
		t.Fatalf("expected %d result slots, got %d", len(units), len(results))
	}
	for i, result := range results {
		value, ok := result.(int)
		if !ok {
			t.Fatalf("slot %d holds %T, expected int", i, result)
		}
		if value != i {
			t.Errorf("slot %d holds %d; order not preserved", i, value)
		}
	}
}

func TestBatchRetryFailureMarkerIsolated(t *testing.T) {
	units := make([]UnitOfWork[string], 5)
	for i := range units {
		idx := i
		units[idx] = func(ctx context.Context) (string, error) {
			if idx == 2 {
				return "", errors.New("element deleted")
			}
			return fmt.Sprintf("el-%d", idx), nil
		}
	}

	results := BatchRetry(context.Background(), units, fastPolicy(3))

	for i, result := range results {
		if i == 2 {
			if !IsRetryFailure(result) {
				t.Fatalf("slot 2 should hold a failure marker, got %T", result)
			}
			marker := result.(RetryFailure)
			if !strings.Contains(marker.Error, "Failed after 3 attempts") {
				t.Errorf("marker error %q does not state the attempt count", marker.Error)
			}
			if marker.Attempts != 3 {
				t.Errorf("marker records %d attempts, want 3", marker.Attempts)
			}
			continue
		}
		if IsRetryFailure(result) {
			t.Errorf("sibling slot %d was aborted by an unrelated failure", i)
		}
	}
}

func TestBatchRetryCancelledMarkerAttempts(t *testing.T) {
	// A cancelled context aborts the retry loop early; the marker must
	// record the calls actually made, not the full policy budget.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	units := []UnitOfWork[string]{
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("element unavailable")
		},
	}

	policy := RetryPolicy{MaxAttempts: 5, Delays: []time.Duration{10 * time.Millisecond}}
	results := BatchRetry(ctx, units, policy)

	if !IsRetryFailure(results[0]) {
		t.Fatalf("slot 0 should hold a failure marker, got %T", results[0])
	}
	marker := results[0].(RetryFailure)
	if marker.Attempts != calls {
		t.Errorf("marker records %d attempts, but %d calls were made", marker.Attempts, calls)
	}
	if marker.Attempts != 1 {
		t.Errorf("cancelled unit consumed %d attempts, want 1", marker.Attempts)
	}
}

func TestBatchRetryEmpty(t *testing.T) {
	results := BatchRetry[int](context.Background(), nil, fastPolicy(3))
	if len(results) != 0 {
		t.Errorf("expected no result slots, got %d", len(results))
	}
}

func TestIsRetryFailure(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  bool
	}{
		{"nil", nil, false},
		{"int", 42, false},
		{"string", "failed", false},
		{"bool", true, false},
		{"plain struct", struct{ Failed bool }{Failed: true}, false},
		{"map shape", map[string]interface{}{"failed": true, "error": "x"}, false},
		{"marker with failed unset", RetryFailure{Failed: false, Error: "x"}, false},
		{"genuine marker", RetryFailure{Failed: true, Error: "x"}, true},
		{"marker pointer", &RetryFailure{Failed: true, Error: "x"}, true},
		{"nil marker pointer", (*RetryFailure)(nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryFailure(tt.value); got != tt.want {
				t.Errorf("IsRetryFailure(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
