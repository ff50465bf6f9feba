package engine

import (
	"sync"
	"time"
)

// FailureLedger accumulates per-element failure records during processing.
// Records are append-only; nothing is ever removed or rewritten. Safe for
// concurrent use by mutation attempts within a batch.
type FailureLedger struct {
	mu      sync.Mutex
	records []FailedElement
}

// NewFailureLedger creates an empty ledger.
func NewFailureLedger() *FailureLedger {
	return &FailureLedger{}
}

// Append records one exhausted element failure.
func (l *FailureLedger) Append(record FailedElement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
}

// Count returns the number of ledgered failures.
func (l *FailureLedger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Records returns a copy of the ledger in append order.
func (l *FailureLedger) Records() []FailedElement {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FailedElement, len(l.records))
	copy(out, l.records)
	return out
}

// BuildResult computes the terminal summary for an operation from the total
// affected count and the accumulated ledger:
//
//	updatedCount = total - failedCount
//	success      = failedCount == 0
//	hasWarnings  = failedCount > 0 && updatedCount > 0
//
// A fully failed operation (updatedCount == 0 with a non-empty ledger)
// settles the state machine to error; a partially failed one settles to
// complete with warnings. That decision belongs to the controller; the
// result itself just reports the counts.
func BuildResult(total int, failures []FailedElement, checkpoint *Checkpoint, duration time.Duration) *ReplacementResult {
	failed := len(failures)
	updated := total - failed

	result := &ReplacementResult{
		Success:      failed == 0,
		UpdatedCount: updated,
		FailedCount:  failed,
		Duration:     duration,
		HasWarnings:  failed > 0 && updated > 0,
	}
	if failed > 0 {
		result.FailedElements = make([]FailedElement, failed)
		copy(result.FailedElements, failures)
	}
	if checkpoint != nil {
		result.CheckpointTitle = checkpoint.Title
	}
	return result
}
