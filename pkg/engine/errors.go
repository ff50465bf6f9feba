// Package engine implements the adaptive batch replacement engine for
// design-system assignments.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: host document busy, element briefly locked by another editor.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid request, policy denial, element no longer exists.
	ErrorClassPermanent ErrorClass = "permanent"
)

// ErrorKind identifies which stage of a replacement operation produced an error.
type ErrorKind string

const (
	// ErrorKindValidation indicates the request was rejected before any side
	// effect. No checkpoint exists and no element was touched.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindCheckpoint indicates the safety snapshot could not be created.
	// No element was touched; the whole operation is safe to retry.
	ErrorKindCheckpoint ErrorKind = "checkpoint"

	// ErrorKindProcessing indicates a catastrophic failure during batch
	// processing. A checkpoint exists and is referenced for manual recovery.
	ErrorKindProcessing ErrorKind = "processing"

	// ErrorKindPermission indicates a policy gate denied the operation.
	ErrorKindPermission ErrorKind = "permission"
)

// EngineError represents a classified error with replacement-operation context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Kind identifies the operation stage that failed, if known.
	Kind ErrorKind `json:"kind,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// ElementID is the document element that caused the error, if applicable.
	ElementID string `json:"element_id,omitempty"`

	// OperationID is the replacement operation the error belongs to.
	OperationID string `json:"operation_id,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	switch {
	case e.ElementID != "" && e.Err != nil:
		return fmt.Sprintf("[%s] %s (element=%s): %s", e.Class, e.Message, e.ElementID, e.Err)
	case e.ElementID != "":
		return fmt.Sprintf("[%s] %s (element=%s)", e.Class, e.Message, e.ElementID)
	case e.Err != nil:
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.Err)
	default:
		return fmt.Sprintf("[%s] %s", e.Class, e.Message)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Kind == t.Kind
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithKind adds the operation stage to an error.
func (e *EngineError) WithKind(kind ErrorKind) *EngineError {
	e.Kind = kind
	return e
}

// WithElement adds element context to an error.
func (e *EngineError) WithElement(elementID string) *EngineError {
	e.ElementID = elementID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operationID string) *EngineError {
	e.OperationID = operationID
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried. Unclassified errors
// are treated as retryable so that a flaky mutation applier still gets its
// full retry budget.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !IsPermanent(err)
}

// KindOf extracts the operation stage from an error chain. Errors without a
// stage default to ErrorKindProcessing.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return ErrorKindProcessing
}

// ErrInvalidTransition is returned when a lifecycle transition is requested
// that the state machine does not allow. It indicates a programming error in
// the caller, not an expected business failure.
var ErrInvalidTransition = errors.New("invalid operation state transition")

// ErrOperationActive is returned when a replacement is requested while
// another operation on the same document has not yet reached a terminal
// state and been acknowledged.
var ErrOperationActive = errors.New("a replacement operation is already active")
