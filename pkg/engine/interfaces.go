package engine

import (
	"context"
	"time"
)

// CheckpointProvider creates the safety snapshot for a replacement
// operation. It is invoked exactly once per operation, synchronously,
// strictly before the first mutation attempt.
type CheckpointProvider interface {
	// CreateCheckpoint snapshots the document state under the given title.
	// The operation ID keys at-most-once enforcement in the provider.
	CreateCheckpoint(ctx context.Context, documentID, operationID, title string) (*Checkpoint, error)
}

// MutationApplier owns all knowledge of reading and writing the underlying
// document. The engine never touches host-specific shapes; it only hands the
// applier element and assignment identifiers.
type MutationApplier interface {
	// ApplyReplacement swaps the source assignment for the target assignment
	// on a single element. A nil return means the element was updated.
	ApplyReplacement(ctx context.Context, documentID string, kind OperationKind, elementID, sourceID, targetID string) error

	// ResolveAssignment reports whether an assignment identifier resolves to
	// a known style or token definition.
	ResolveAssignment(ctx context.Context, documentID string, kind OperationKind, assignmentID string) (bool, error)
}

// EventPublisher receives the ordered protocol stream. Implementations must
// preserve publish order; the controller publishes synchronously.
type EventPublisher interface {
	// Publish delivers one protocol event.
	Publish(ctx context.Context, event *Event) error
}

// PolicyGate decides whether a validated replacement request may proceed.
// A non-nil error denies the request; the controller reports it with kind
// permission. A nil PolicyGate allows everything.
type PolicyGate interface {
	// Allow returns nil when the request passes all policies.
	Allow(ctx context.Context, req *ReplacementRequest) error
}

// MetricsRecorder receives measurement callbacks from the controller and the
// batch scheduler. A nil recorder disables measurement. Implementations must
// be safe for concurrent use; retries are observed from concurrent mutation
// goroutines.
type MetricsRecorder interface {
	// RecordBatch observes one completed batch: its element count, its
	// ledgered failure count, and its wall-clock duration.
	RecordBatch(size, failures int, duration time.Duration)

	// RecordElementOutcomes observes the settled outcomes of one batch.
	RecordElementOutcomes(updated, failed int)

	// RecordRetryAttempt observes one retry of a failed mutation attempt.
	RecordRetryAttempt()

	// RecordStaleSignal observes a document staleness signal received while
	// an operation is in flight.
	RecordStaleSignal(documentID string)
}

// OperationStore persists operation records and their failure ledgers for
// later inspection. Persistence failures are logged, never fatal: the
// in-memory operation remains authoritative.
type OperationStore interface {
	// SaveOperation persists the current state of an operation.
	SaveOperation(ctx context.Context, op *ReplacementOperation) error
}
