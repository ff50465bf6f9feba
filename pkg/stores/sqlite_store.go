package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL&_txlock=immediate",
		s.path, s.cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// UpsertDocument inserts or updates a document record
func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO documents (id, name, source_path, stale, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source_path = excluded.source_path,
			stale = excluded.stale,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Name,
		doc.SourcePath,
		doc.Stale,
		doc.CreatedAt,
		doc.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	return nil
}

// GetDocument retrieves a document by ID
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	query := `
		SELECT id, name, source_path, stale, created_at, updated_at
		FROM documents
		WHERE id = ?
	`

	doc := &Document{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&doc.Name,
		&doc.SourcePath,
		&doc.Stale,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// ListDocuments lists documents with pagination
func (s *SQLiteStore) ListDocuments(ctx context.Context, limit, offset int) ([]*Document, error) {
	query := `
		SELECT id, name, source_path, stale, created_at, updated_at
		FROM documents
		ORDER BY name ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		doc := &Document{}
		err := rows.Scan(
			&doc.ID,
			&doc.Name,
			&doc.SourcePath,
			&doc.Stale,
			&doc.CreatedAt,
			&doc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

// SetDocumentStale flags or clears the staleness marker of a document
func (s *SQLiteStore) SetDocumentStale(ctx context.Context, id string, stale bool) error {
	query := `UPDATE documents SET stale = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, stale, id)
	if err != nil {
		return fmt.Errorf("failed to update document staleness: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("document not found: %s", id)
	}

	return nil
}

// DeleteDocument deletes a document and all dependent rows
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	query := `DELETE FROM documents WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("document not found: %s", id)
	}

	return nil
}

// UpsertElement inserts or updates an element record
func (s *SQLiteStore) UpsertElement(ctx context.Context, element *Element) error {
	query := `
		INSERT INTO elements (id, document_id, name, node_type, page_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			node_type = excluded.node_type,
			page_name = excluded.page_name,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		element.ID,
		element.DocumentID,
		element.Name,
		element.NodeType,
		element.PageName,
		element.CreatedAt,
		element.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert element: %w", err)
	}

	return nil
}

// GetElement retrieves an element by ID
func (s *SQLiteStore) GetElement(ctx context.Context, id string) (*Element, error) {
	query := `
		SELECT id, document_id, name, node_type, page_name, created_at, updated_at
		FROM elements
		WHERE id = ?
	`

	element := &Element{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&element.ID,
		&element.DocumentID,
		&element.Name,
		&element.NodeType,
		&element.PageName,
		&element.CreatedAt,
		&element.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("element not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get element: %w", err)
	}

	return element, nil
}

// ListElementsByAssignment lists every element of a document that carries the
// given assignment, ordered by element ID so the affected list is stable.
func (s *SQLiteStore) ListElementsByAssignment(ctx context.Context, documentID string, kind AssignmentKind, assignmentID string) ([]*Element, error) {
	query := `
		SELECT e.id, e.document_id, e.name, e.node_type, e.page_name, e.created_at, e.updated_at
		FROM elements e
		JOIN element_assignments ea ON ea.element_id = e.id
		WHERE e.document_id = ? AND ea.kind = ? AND ea.assignment_id = ?
		ORDER BY e.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, documentID, kind, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list elements by assignment: %w", err)
	}
	defer rows.Close()

	elements := []*Element{}
	for rows.Next() {
		element := &Element{}
		err := rows.Scan(
			&element.ID,
			&element.DocumentID,
			&element.Name,
			&element.NodeType,
			&element.PageName,
			&element.CreatedAt,
			&element.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan element: %w", err)
		}
		elements = append(elements, element)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating elements: %w", err)
	}

	return elements, nil
}

// CountElementsByAssignment counts elements of a document carrying the given
// assignment
func (s *SQLiteStore) CountElementsByAssignment(ctx context.Context, documentID string, kind AssignmentKind, assignmentID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM elements e
		JOIN element_assignments ea ON ea.element_id = e.id
		WHERE e.document_id = ? AND ea.kind = ? AND ea.assignment_id = ?
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, documentID, kind, assignmentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count elements by assignment: %w", err)
	}

	return count, nil
}

// UpsertAssignment inserts or updates a catalog assignment
func (s *SQLiteStore) UpsertAssignment(ctx context.Context, assignment *Assignment) error {
	query := `
		INSERT INTO assignments (id, document_id, kind, name, locked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, kind, id) DO UPDATE SET
			name = excluded.name,
			locked = excluded.locked,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		assignment.ID,
		assignment.DocumentID,
		assignment.Kind,
		assignment.Name,
		assignment.Locked,
		assignment.CreatedAt,
		assignment.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}

	return nil
}

// GetAssignment retrieves a catalog assignment
func (s *SQLiteStore) GetAssignment(ctx context.Context, documentID string, kind AssignmentKind, id string) (*Assignment, error) {
	query := `
		SELECT id, document_id, kind, name, locked, created_at, updated_at
		FROM assignments
		WHERE document_id = ? AND kind = ? AND id = ?
	`

	assignment := &Assignment{}
	err := s.db.QueryRowContext(ctx, query, documentID, kind, id).Scan(
		&assignment.ID,
		&assignment.DocumentID,
		&assignment.Kind,
		&assignment.Name,
		&assignment.Locked,
		&assignment.CreatedAt,
		&assignment.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("assignment not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return assignment, nil
}

// AssignmentExists reports whether a catalog assignment resolves
func (s *SQLiteStore) AssignmentExists(ctx context.Context, documentID string, kind AssignmentKind, id string) (bool, error) {
	query := `SELECT COUNT(*) FROM assignments WHERE document_id = ? AND kind = ? AND id = ?`

	var count int
	if err := s.db.QueryRowContext(ctx, query, documentID, kind, id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}

	return count > 0, nil
}

// ListAssignments lists the style or token catalog of a document
func (s *SQLiteStore) ListAssignments(ctx context.Context, documentID string, kind AssignmentKind) ([]*Assignment, error) {
	query := `
		SELECT id, document_id, kind, name, locked, created_at, updated_at
		FROM assignments
		WHERE document_id = ? AND kind = ?
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, documentID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	assignments := []*Assignment{}
	for rows.Next() {
		assignment := &Assignment{}
		err := rows.Scan(
			&assignment.ID,
			&assignment.DocumentID,
			&assignment.Kind,
			&assignment.Name,
			&assignment.Locked,
			&assignment.CreatedAt,
			&assignment.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, assignment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assignments, nil
}

// SetElementAssignment inserts or updates an element's assignment binding
func (s *SQLiteStore) SetElementAssignment(ctx context.Context, ea *ElementAssignment) error {
	query := `
		INSERT INTO element_assignments (element_id, kind, assignment_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(element_id, kind) DO UPDATE SET
			assignment_id = excluded.assignment_id,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		ea.ElementID,
		ea.Kind,
		ea.AssignmentID,
		ea.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to set element assignment: %w", err)
	}

	return nil
}

// GetElementAssignment retrieves the assignment binding of an element
func (s *SQLiteStore) GetElementAssignment(ctx context.Context, elementID string, kind AssignmentKind) (*ElementAssignment, error) {
	query := `
		SELECT element_id, kind, assignment_id, updated_at
		FROM element_assignments
		WHERE element_id = ? AND kind = ?
	`

	ea := &ElementAssignment{}
	err := s.db.QueryRowContext(ctx, query, elementID, kind).Scan(
		&ea.ElementID,
		&ea.Kind,
		&ea.AssignmentID,
		&ea.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("element assignment not found: %s/%s", elementID, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get element assignment: %w", err)
	}

	return ea, nil
}

// ListElementAssignmentsByDocument lists every assignment binding of a
// document's elements, the raw material of a checkpoint snapshot.
func (s *SQLiteStore) ListElementAssignmentsByDocument(ctx context.Context, documentID string) ([]*ElementAssignment, error) {
	query := `
		SELECT ea.element_id, ea.kind, ea.assignment_id, ea.updated_at
		FROM element_assignments ea
		JOIN elements e ON e.id = ea.element_id
		WHERE e.document_id = ?
		ORDER BY ea.element_id ASC, ea.kind ASC
	`

	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list element assignments: %w", err)
	}
	defer rows.Close()

	eas := []*ElementAssignment{}
	for rows.Next() {
		ea := &ElementAssignment{}
		err := rows.Scan(
			&ea.ElementID,
			&ea.Kind,
			&ea.AssignmentID,
			&ea.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan element assignment: %w", err)
		}
		eas = append(eas, ea)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating element assignments: %w", err)
	}

	return eas, nil
}

// ReplaceElementAssignment swaps the assignment of one element from source to
// target. The update is conditional on the element still carrying the source
// assignment so a concurrently edited element fails rather than being
// silently overwritten.
func (s *SQLiteStore) ReplaceElementAssignment(ctx context.Context, elementID string, kind AssignmentKind, sourceID, targetID string) error {
	query := `
		UPDATE element_assignments
		SET assignment_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE element_id = ? AND kind = ? AND assignment_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, targetID, elementID, kind, sourceID)
	if err != nil {
		return fmt.Errorf("failed to replace element assignment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("element %s no longer carries %s assignment %s", elementID, kind, sourceID)
	}

	return nil
}

// CreateCheckpoint stores a checkpoint and its entries atomically. The
// operation_id uniqueness constraint enforces at most one checkpoint per
// operation.
func (s *SQLiteStore) CreateCheckpoint(ctx context.Context, checkpoint *Checkpoint, entries []*CheckpointEntry) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin checkpoint transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO checkpoints (id, document_id, operation_id, title, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		checkpoint.ID,
		checkpoint.DocumentID,
		checkpoint.OperationID,
		checkpoint.Title,
		checkpoint.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}

	entryQuery := `
		INSERT INTO checkpoint_entries (checkpoint_id, element_id, kind, assignment_id)
		VALUES (?, ?, ?, ?)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, entryQuery,
			checkpoint.ID,
			entry.ElementID,
			entry.Kind,
			entry.AssignmentID,
		); err != nil {
			return fmt.Errorf("failed to create checkpoint entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}

	checkpoint.EntryCount = len(entries)
	return nil
}

// GetCheckpoint retrieves a checkpoint by ID
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	query := `
		SELECT c.id, c.document_id, c.operation_id, c.title, c.created_at,
			   (SELECT COUNT(*) FROM checkpoint_entries ce WHERE ce.checkpoint_id = c.id)
		FROM checkpoints c
		WHERE c.id = ?
	`

	checkpoint := &Checkpoint{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&checkpoint.ID,
		&checkpoint.DocumentID,
		&checkpoint.OperationID,
		&checkpoint.Title,
		&checkpoint.CreatedAt,
		&checkpoint.EntryCount,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkpoint not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return checkpoint, nil
}

// ListCheckpointsByDocument lists checkpoints of a document, newest first
func (s *SQLiteStore) ListCheckpointsByDocument(ctx context.Context, documentID string) ([]*Checkpoint, error) {
	query := `
		SELECT c.id, c.document_id, c.operation_id, c.title, c.created_at,
			   (SELECT COUNT(*) FROM checkpoint_entries ce WHERE ce.checkpoint_id = c.id)
		FROM checkpoints c
		WHERE c.document_id = ?
		ORDER BY c.created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []*Checkpoint{}
	for rows.Next() {
		checkpoint := &Checkpoint{}
		err := rows.Scan(
			&checkpoint.ID,
			&checkpoint.DocumentID,
			&checkpoint.OperationID,
			&checkpoint.Title,
			&checkpoint.CreatedAt,
			&checkpoint.EntryCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, checkpoint)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoints: %w", err)
	}

	return checkpoints, nil
}

// ListCheckpointEntries lists the snapshotted assignments of a checkpoint
func (s *SQLiteStore) ListCheckpointEntries(ctx context.Context, checkpointID string) ([]*CheckpointEntry, error) {
	query := `
		SELECT checkpoint_id, element_id, kind, assignment_id
		FROM checkpoint_entries
		WHERE checkpoint_id = ?
		ORDER BY element_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoint entries: %w", err)
	}
	defer rows.Close()

	entries := []*CheckpointEntry{}
	for rows.Next() {
		entry := &CheckpointEntry{}
		err := rows.Scan(
			&entry.CheckpointID,
			&entry.ElementID,
			&entry.Kind,
			&entry.AssignmentID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint entries: %w", err)
	}

	return entries, nil
}

// UpsertOperation inserts or updates an operation record
func (s *SQLiteStore) UpsertOperation(ctx context.Context, op *Operation) error {
	query := `
		INSERT INTO operations (
			id, document_id, kind, source_id, target_id, status,
			affected_count, updated_count, failed_count, checkpoint_title,
			stale, error, started_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_count = excluded.updated_count,
			failed_count = excluded.failed_count,
			checkpoint_title = excluded.checkpoint_title,
			stale = excluded.stale,
			error = excluded.error,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		op.ID,
		op.DocumentID,
		op.Kind,
		op.SourceID,
		op.TargetID,
		op.Status,
		op.AffectedCount,
		op.UpdatedCount,
		op.FailedCount,
		op.CheckpointTitle,
		op.Stale,
		op.Error,
		op.StartedAt,
		op.CompletedAt,
		op.CreatedAt,
		op.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert operation: %w", err)
	}

	return nil
}

// GetOperation retrieves an operation by ID
func (s *SQLiteStore) GetOperation(ctx context.Context, id string) (*Operation, error) {
	query := `
		SELECT id, document_id, kind, source_id, target_id, status,
			   affected_count, updated_count, failed_count, checkpoint_title,
			   stale, error, started_at, completed_at, created_at, updated_at
		FROM operations
		WHERE id = ?
	`

	op := &Operation{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&op.ID,
		&op.DocumentID,
		&op.Kind,
		&op.SourceID,
		&op.TargetID,
		&op.Status,
		&op.AffectedCount,
		&op.UpdatedCount,
		&op.FailedCount,
		&op.CheckpointTitle,
		&op.Stale,
		&op.Error,
		&op.StartedAt,
		&op.CompletedAt,
		&op.CreatedAt,
		&op.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("operation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	return op, nil
}

// ListOperationsByDocument lists operations of a document, newest first
func (s *SQLiteStore) ListOperationsByDocument(ctx context.Context, documentID string, limit, offset int) ([]*Operation, error) {
	query := `
		SELECT id, document_id, kind, source_id, target_id, status,
			   affected_count, updated_count, failed_count, checkpoint_title,
			   stale, error, started_at, completed_at, created_at, updated_at
		FROM operations
		WHERE document_id = ?
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, documentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	ops := []*Operation{}
	for rows.Next() {
		op := &Operation{}
		err := rows.Scan(
			&op.ID,
			&op.DocumentID,
			&op.Kind,
			&op.SourceID,
			&op.TargetID,
			&op.Status,
			&op.AffectedCount,
			&op.UpdatedCount,
			&op.FailedCount,
			&op.CheckpointTitle,
			&op.Stale,
			&op.Error,
			&op.StartedAt,
			&op.CompletedAt,
			&op.CreatedAt,
			&op.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}

// AppendOperationFailure appends one exhausted element to the failure ledger
func (s *SQLiteStore) AppendOperationFailure(ctx context.Context, failure *OperationFailure) error {
	query := `
		INSERT INTO operation_failures (operation_id, element_id, element_name, reason, attempts, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		failure.OperationID,
		failure.ElementID,
		failure.ElementName,
		failure.Reason,
		failure.Attempts,
		failure.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append operation failure: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get failure ID: %w", err)
	}

	failure.ID = id
	return nil
}

// ListOperationFailures lists the failure ledger of an operation
func (s *SQLiteStore) ListOperationFailures(ctx context.Context, operationID string) ([]*OperationFailure, error) {
	query := `
		SELECT id, operation_id, element_id, element_name, reason, attempts, timestamp
		FROM operation_failures
		WHERE operation_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list operation failures: %w", err)
	}
	defer rows.Close()

	failures := []*OperationFailure{}
	for rows.Next() {
		failure := &OperationFailure{}
		err := rows.Scan(
			&failure.ID,
			&failure.OperationID,
			&failure.ElementID,
			&failure.ElementName,
			&failure.Reason,
			&failure.Attempts,
			&failure.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation failure: %w", err)
		}
		failures = append(failures, failure)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operation failures: %w", err)
	}

	return failures, nil
}

// AppendEvent appends a new event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (operation_id, document_id, type, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.OperationID,
		event.DocumentID,
		event.Type,
		event.Level,
		event.Message,
		event.Details,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves events with optional filters and pagination
func (s *SQLiteStore) GetEvents(ctx context.Context, operationID *string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, operation_id, document_id, type, level, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR operation_id = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, operationID, operationID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.OperationID,
			&event.DocumentID,
			&event.Type,
			&event.Level,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
