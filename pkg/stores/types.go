package stores

import (
	"context"
	"database/sql"
	"time"
)

// OperationStatus represents the lifecycle state of a replacement operation
type OperationStatus string

const (
	OperationStatusValidating         OperationStatus = "validating"
	OperationStatusCreatingCheckpoint OperationStatus = "creating_checkpoint"
	OperationStatusProcessing         OperationStatus = "processing"
	OperationStatusComplete           OperationStatus = "complete"
	OperationStatusError              OperationStatus = "error"
)

// AssignmentKind distinguishes named styles from design tokens
type AssignmentKind string

const (
	AssignmentKindStyle AssignmentKind = "style"
	AssignmentKindToken AssignmentKind = "token"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Document represents a design document whose elements carry assignments
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SourcePath string    `json:"source_path"` // on-disk source, watched for staleness
	Stale      bool      `json:"stale"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Element represents a single document element (frame, text node, shape)
type Element struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Name       string    `json:"name"`
	NodeType   string    `json:"node_type"` // e.g. "frame", "text", "rect"
	PageName   string    `json:"page_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Assignment represents one entry of a document's style or token catalog
type Assignment struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Kind       AssignmentKind `json:"kind"`
	Name       string         `json:"name"`
	Locked     bool           `json:"locked"` // locked assignments are protected by policy
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ElementAssignment binds an element to a catalog assignment
type ElementAssignment struct {
	ElementID    string         `json:"element_id"`
	Kind         AssignmentKind `json:"kind"`
	AssignmentID string         `json:"assignment_id"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Checkpoint represents a pre-mutation snapshot of a document's assignments
type Checkpoint struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	OperationID string    `json:"operation_id"`
	Title       string    `json:"title"`
	EntryCount  int       `json:"entry_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// CheckpointEntry represents one snapshotted element assignment
type CheckpointEntry struct {
	CheckpointID string         `json:"checkpoint_id"`
	ElementID    string         `json:"element_id"`
	Kind         AssignmentKind `json:"kind"`
	AssignmentID string         `json:"assignment_id"`
}

// Operation represents a persisted replacement operation record
type Operation struct {
	ID              string          `json:"id"`
	DocumentID      string          `json:"document_id"`
	Kind            AssignmentKind  `json:"kind"`
	SourceID        string          `json:"source_id"`
	TargetID        string          `json:"target_id"`
	Status          OperationStatus `json:"status"`
	AffectedCount   int             `json:"affected_count"`
	UpdatedCount    int             `json:"updated_count"`
	FailedCount     int             `json:"failed_count"`
	CheckpointTitle *string         `json:"checkpoint_title,omitempty"`
	Stale           bool            `json:"stale"`
	Error           *string         `json:"error,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OperationFailure represents one element that exhausted its retries
type OperationFailure struct {
	ID          int64     `json:"id"`
	OperationID string    `json:"operation_id"`
	ElementID   string    `json:"element_id"`
	ElementName string    `json:"element_name"`
	Reason      string    `json:"reason"`
	Attempts    int       `json:"attempts"`
	Timestamp   time.Time `json:"timestamp"`
}

// Event represents an append-only protocol event
type Event struct {
	ID          int64      `json:"id"`
	OperationID *string    `json:"operation_id,omitempty"`
	DocumentID  *string    `json:"document_id,omitempty"`
	Type        string     `json:"type"`
	Level       EventLevel `json:"level"`
	Message     string     `json:"message"`
	Details     *string    `json:"details,omitempty"` // JSON blob
	Timestamp   time.Time  `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Document operations
	UpsertDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]*Document, error)
	SetDocumentStale(ctx context.Context, id string, stale bool) error
	DeleteDocument(ctx context.Context, id string) error

	// Element operations
	UpsertElement(ctx context.Context, element *Element) error
	GetElement(ctx context.Context, id string) (*Element, error)
	ListElementsByAssignment(ctx context.Context, documentID string, kind AssignmentKind, assignmentID string) ([]*Element, error)
	CountElementsByAssignment(ctx context.Context, documentID string, kind AssignmentKind, assignmentID string) (int, error)

	// Assignment catalog operations
	UpsertAssignment(ctx context.Context, assignment *Assignment) error
	GetAssignment(ctx context.Context, documentID string, kind AssignmentKind, id string) (*Assignment, error)
	AssignmentExists(ctx context.Context, documentID string, kind AssignmentKind, id string) (bool, error)
	ListAssignments(ctx context.Context, documentID string, kind AssignmentKind) ([]*Assignment, error)

	// Element assignment operations
	SetElementAssignment(ctx context.Context, ea *ElementAssignment) error
	GetElementAssignment(ctx context.Context, elementID string, kind AssignmentKind) (*ElementAssignment, error)
	ListElementAssignmentsByDocument(ctx context.Context, documentID string) ([]*ElementAssignment, error)
	ReplaceElementAssignment(ctx context.Context, elementID string, kind AssignmentKind, sourceID, targetID string) error

	// Checkpoint operations
	CreateCheckpoint(ctx context.Context, checkpoint *Checkpoint, entries []*CheckpointEntry) error
	GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error)
	ListCheckpointsByDocument(ctx context.Context, documentID string) ([]*Checkpoint, error)
	ListCheckpointEntries(ctx context.Context, checkpointID string) ([]*CheckpointEntry, error)

	// Operation operations
	UpsertOperation(ctx context.Context, op *Operation) error
	GetOperation(ctx context.Context, id string) (*Operation, error)
	ListOperationsByDocument(ctx context.Context, documentID string, limit, offset int) ([]*Operation, error)
	AppendOperationFailure(ctx context.Context, failure *OperationFailure) error
	ListOperationFailures(ctx context.Context, operationID string) ([]*OperationFailure, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, operationID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
