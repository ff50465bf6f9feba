package engine

import (
	"time"
)

// ElementRef identifies one document element targeted by a replacement.
type ElementRef struct {
	// ID is the unique identifier of the element within its document.
	ID string `json:"id"`

	// Name is the human-readable element name used in failure reports.
	Name string `json:"name"`
}

// ReplacementRequest describes one bulk edit as confirmed by the operator.
// The affected-element list is produced by the audit layer: ordered,
// duplicate-free, and captured once at validation time.
type ReplacementRequest struct {
	// OperationID, when set, becomes the operation's identifier. Callers
	// that instrument the operation externally use it to correlate spans
	// and records; the controller generates one when it is empty.
	OperationID string `json:"operation_id,omitempty"`

	// Kind is the class of assignment being replaced (style or token).
	Kind OperationKind `json:"kind"`

	// DocumentID is the document the replacement runs against.
	DocumentID string `json:"document_id"`

	// SourceID is the assignment being replaced.
	SourceID string `json:"source_id"`

	// TargetID is the assignment that replaces it.
	TargetID string `json:"target_id"`

	// Elements is the ordered, duplicate-free affected-element list.
	Elements []ElementRef `json:"elements"`

	// CheckpointTitle overrides the generated checkpoint title, if set.
	CheckpointTitle string `json:"checkpoint_title,omitempty"`

	// Operator is the user who confirmed the replacement.
	Operator string `json:"operator,omitempty"`
}

// Checkpoint is the recoverable snapshot taken before any mutation.
type Checkpoint struct {
	// Title names the checkpoint for manual rollback.
	Title string `json:"title"`

	// Timestamp is when the checkpoint was created.
	Timestamp time.Time `json:"timestamp"`
}

// ReplacementOperation is one in-flight bulk edit. It is owned exclusively
// by the controller processing it; at most one operation is active per
// document. The element list is immutable for the operation's lifetime.
type ReplacementOperation struct {
	// ID is the unique identifier for this operation.
	ID string `json:"id"`

	// Kind is the class of assignment being replaced.
	Kind OperationKind `json:"kind"`

	// DocumentID is the document being edited.
	DocumentID string `json:"document_id"`

	// SourceID is the assignment being replaced.
	SourceID string `json:"source_id"`

	// TargetID is the assignment that replaces it.
	TargetID string `json:"target_id"`

	// Elements is the affected-element list captured at validation.
	Elements []ElementRef `json:"elements"`

	// State is the current lifecycle state.
	State OperationState `json:"state"`

	// Checkpoint is set once the safety snapshot exists.
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`

	// StartedAt is when the operation entered validation.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the operation reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Stale records that the underlying document changed mid-operation.
	Stale bool `json:"stale,omitempty"`

	// Result is the terminal summary, set on completion or error.
	Result *ReplacementResult `json:"result,omitempty"`
}

// FailedElement records one element that could not be mutated despite
// exhausting its retry budget. Records are only ever appended.
type FailedElement struct {
	// ElementID is the element that failed.
	ElementID string `json:"element_id"`

	// ElementName is the display name for failure reports.
	ElementName string `json:"element_name"`

	// Reason is the stringified final failure.
	Reason string `json:"reason"`

	// Attempts is the number of mutation attempts consumed.
	Attempts int `json:"attempts"`
}

// ReplacementResult is the immutable terminal summary of an operation.
type ReplacementResult struct {
	// Success is true when every affected element was updated.
	Success bool `json:"success"`

	// UpdatedCount is the number of elements successfully mutated.
	UpdatedCount int `json:"updated_count"`

	// FailedCount is the number of elements that exhausted retries.
	FailedCount int `json:"failed_count"`

	// FailedElements lists the ledgered failures, in processing order.
	FailedElements []FailedElement `json:"failed_elements,omitempty"`

	// CheckpointTitle names the recovery point, when one was created.
	CheckpointTitle string `json:"checkpoint_title,omitempty"`

	// Duration is the wall-clock time from validation to settlement.
	Duration time.Duration `json:"duration"`

	// HasWarnings is true when some but not all elements failed.
	HasWarnings bool `json:"has_warnings"`
}

// BatchState is the mutable progress cursor owned by the batch scheduler.
// Invariant: Processed + remaining == Total at every batch boundary, and
// BatchFloor <= BatchSize <= BatchCeiling at all times.
type BatchState struct {
	// BatchSize is the number of elements taken for the next batch.
	BatchSize int `json:"batch_size"`

	// CleanStreak counts consecutive zero-failure batches toward the next
	// growth step. It resets when the threshold is reached, so it is always
	// strictly below the growth threshold at a batch boundary.
	CleanStreak int `json:"clean_streak"`

	// Processed is the number of elements resolved so far, success or failure.
	Processed int `json:"processed"`

	// Total is the size of the affected-element list.
	Total int `json:"total"`

	// Failures is the append-only list of ledgered element failures.
	Failures []FailedElement `json:"failures,omitempty"`
}

// Remaining returns the number of elements not yet processed.
func (s *BatchState) Remaining() int {
	return s.Total - s.Processed
}

// Progress is the batch-boundary projection of scheduler state emitted to
// the presentation layer. It is derived, never stored.
type Progress struct {
	// Percent is floor(processed/total*100).
	Percent int `json:"progress"`

	// BatchIndex is the 1-based index of the batch that just resolved.
	BatchIndex int `json:"current_batch"`

	// TotalBatches estimates the batch count at the current batch size.
	TotalBatches int `json:"total_batches"`

	// BatchSize is the batch size in effect for the next batch.
	BatchSize int `json:"current_batch_size"`

	// Processed is the number of elements resolved so far.
	Processed int `json:"processed"`

	// Failed is the number of ledgered failures so far.
	Failed int `json:"failed"`
}

// Event is one message in the ordered protocol stream consumed by the
// presentation layer. Events are emitted at batch boundaries, never per
// element, to bound message volume on very large operations.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Type is the protocol message type.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// OperationID is the replacement operation this event belongs to.
	OperationID string `json:"operation_id"`

	// DocumentID is the document being edited.
	DocumentID string `json:"document_id,omitempty"`

	// Message is a human-readable summary.
	Message string `json:"message"`

	// Level is the severity level (info, warning, error).
	Level string `json:"level"`

	// Data carries the protocol payload for this message type.
	Data map[string]interface{} `json:"data,omitempty"`
}
