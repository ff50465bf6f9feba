package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openrestyle/openrestyle/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	// Create store configuration
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_UpsertOperation demonstrates recording a replacement operation.
func ExampleSQLiteStore_UpsertOperation() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	now := time.Now()
	doc := &stores.Document{
		ID:        "doc-001",
		Name:      "Marketing Site",
		CreatedAt: now,
		UpdatedAt: now,
	}
	_ = store.UpsertDocument(ctx, doc)

	// Record a replacement operation
	op := &stores.Operation{
		ID:            "op-001",
		DocumentID:    "doc-001",
		Kind:          stores.AssignmentKindStyle,
		SourceID:      "style/old-heading",
		TargetID:      "style/new-heading",
		Status:        stores.OperationStatusProcessing,
		AffectedCount: 150,
		StartedAt:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := store.UpsertOperation(ctx, op); err != nil {
		log.Fatal(err)
	}

	// Retrieve the operation
	retrieved, err := store.GetOperation(ctx, "op-001")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Operation: %s, Status: %s, Affected: %d\n",
		retrieved.ID, retrieved.Status, retrieved.AffectedCount)
	// Output: Operation: op-001, Status: processing, Affected: 150
}

// ExampleSQLiteStore_AppendEvent demonstrates logging protocol events.
func ExampleSQLiteStore_AppendEvent() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	opID := "op-002"
	details := `{"affectedCount":150}`
	event := &stores.Event{
		OperationID: &opID,
		Type:        "operation-started",
		Level:       stores.EventLevelInfo,
		Message:     "Replacing style style/old-heading with style/new-heading",
		Details:     &details,
		Timestamp:   time.Now(),
	}

	if err := store.AppendEvent(ctx, event); err != nil {
		log.Fatal(err)
	}

	// Retrieve events
	events, err := store.GetEvents(ctx, &opID, nil, 10, 0)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Event count: %d, Type: %s\n", len(events), events[0].Type)
	// Output: Event count: 1, Type: operation-started
}

// ExampleSQLiteStore_BeginTx demonstrates using transactions.
func ExampleSQLiteStore_BeginTx() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Begin transaction
	tx, err := store.BeginTx(ctx)
	if err != nil {
		log.Fatal(err)
	}

	// Perform operations within transaction
	query := `
		INSERT INTO documents (id, name, source_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	_, err = tx.ExecContext(ctx, query, "doc-tx-001", "Design Library", "", now, now)

	if err != nil {
		_ = store.RollbackTx(tx)
		log.Fatal(err)
	}

	// Commit transaction
	if err := store.CommitTx(tx); err != nil {
		log.Fatal(err)
	}

	// Verify document was created
	doc, err := store.GetDocument(ctx, "doc-tx-001")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Transaction committed: Document %s created\n", doc.ID)
	// Output: Transaction committed: Document doc-tx-001 created
}
