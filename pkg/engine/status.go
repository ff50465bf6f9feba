package engine

import (
	"encoding/json"
	"fmt"
)

// OperationState represents the lifecycle state of a replacement operation.
type OperationState string

const (
	// StateIdle indicates no operation is in flight.
	StateIdle OperationState = "idle"

	// StateValidating indicates the request is being validated. No side
	// effects have occurred; cancellation is still honored here.
	StateValidating OperationState = "validating"

	// StateCreatingCheckpoint indicates the safety snapshot is being created.
	StateCreatingCheckpoint OperationState = "creating_checkpoint"

	// StateProcessing indicates batches are being applied to the document.
	StateProcessing OperationState = "processing"

	// StateComplete indicates the operation finished and carries a result.
	StateComplete OperationState = "complete"

	// StateError indicates the operation failed.
	StateError OperationState = "error"
)

// IsTerminal returns true if the state represents a final outcome.
func (s OperationState) IsTerminal() bool {
	return s == StateComplete || s == StateError
}

// IsActive returns true if an operation is currently in flight.
func (s OperationState) IsActive() bool {
	return s == StateValidating || s == StateCreatingCheckpoint || s == StateProcessing
}

// Validate checks if the operation state is valid.
func (s OperationState) Validate() error {
	switch s {
	case StateIdle, StateValidating, StateCreatingCheckpoint,
		StateProcessing, StateComplete, StateError:
		return nil
	default:
		return fmt.Errorf("invalid operation state: %s", s)
	}
}

// allowedTransitions is the complete lifecycle transition table. Any pair
// absent from this table is rejected.
var allowedTransitions = map[OperationState][]OperationState{
	StateIdle:               {StateValidating},
	StateValidating:         {StateCreatingCheckpoint, StateError, StateIdle},
	StateCreatingCheckpoint: {StateProcessing, StateError},
	StateProcessing:         {StateComplete, StateError},
	StateComplete:           {StateIdle},
	StateError:              {StateIdle},
}

// CanTransition reports whether the lifecycle allows moving from one state
// to another. The validating->idle edge exists only for pre-checkpoint
// cancellation; once a checkpoint exists the operation is always driven to a
// terminal state.
func CanTransition(from, to OperationState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OperationKind identifies which class of design-system assignment an
// operation replaces.
type OperationKind string

const (
	// KindStyle replaces a named style assignment.
	KindStyle OperationKind = "style"

	// KindToken replaces a design-token assignment.
	KindToken OperationKind = "token"
)

// Validate checks if the operation kind is valid.
func (k OperationKind) Validate() error {
	switch k {
	case KindStyle, KindToken:
		return nil
	default:
		return fmt.Errorf("invalid operation kind: %s", k)
	}
}

// EventType represents the type of event in the replacement protocol stream.
type EventType string

const (
	// EventTypeOperationStarted indicates a replacement entered validation.
	EventTypeOperationStarted EventType = "operation-started"

	// EventTypeCheckpointCreated indicates the safety snapshot exists.
	EventTypeCheckpointCreated EventType = "checkpoint-created"

	// EventTypeProgress carries batch-boundary progress telemetry.
	EventTypeProgress EventType = "progress"

	// EventTypeOperationComplete indicates the operation settled successfully,
	// possibly with warnings.
	EventTypeOperationComplete EventType = "operation-complete"

	// EventTypeOperationError indicates the operation settled to error.
	EventTypeOperationError EventType = "operation-error"

	// EventTypeDocumentStale indicates the underlying document changed while
	// an operation was in flight. Informational; the operation continues.
	EventTypeDocumentStale EventType = "document-stale"
)

// Severity returns the severity level of the event type.
func (e EventType) Severity() string {
	switch e {
	case EventTypeOperationError:
		return "error"
	case EventTypeDocumentStale:
		return "warning"
	default:
		return "info"
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s OperationState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *OperationState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = OperationState(str)
	return s.Validate()
}
