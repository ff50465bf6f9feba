package document

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrestyle/openrestyle/pkg/engine"
	"github.com/openrestyle/openrestyle/pkg/stores"
)

// OperationRecorder implements engine.OperationStore, persisting operation
// records and their failure ledgers so past replacements stay inspectable.
type OperationRecorder struct {
	store  stores.Store
	logger zerolog.Logger
}

// NewOperationRecorder creates a store-backed operation recorder.
func NewOperationRecorder(store stores.Store, logger zerolog.Logger) *OperationRecorder {
	return &OperationRecorder{
		store:  store,
		logger: logger.With().Str("component", "operation-recorder").Logger(),
	}
}

// SaveOperation upserts the operation record. On a terminal state the
// failure ledger is persisted alongside it.
func (r *OperationRecorder) SaveOperation(ctx context.Context, op *engine.ReplacementOperation) error {
	record := &stores.Operation{
		ID:            op.ID,
		DocumentID:    op.DocumentID,
		Kind:          assignmentKind(op.Kind),
		SourceID:      op.SourceID,
		TargetID:      op.TargetID,
		Status:        stores.OperationStatus(op.State),
		AffectedCount: len(op.Elements),
		Stale:         op.Stale,
		StartedAt:     op.StartedAt,
		CompletedAt:   op.CompletedAt,
		CreatedAt:     op.StartedAt,
		UpdatedAt:     time.Now(),
	}
	if op.Checkpoint != nil {
		title := op.Checkpoint.Title
		record.CheckpointTitle = &title
	}
	if op.Result != nil {
		record.UpdatedCount = op.Result.UpdatedCount
		record.FailedCount = op.Result.FailedCount
	}

	if err := r.store.UpsertOperation(ctx, record); err != nil {
		return fmt.Errorf("failed to save operation %s: %w", op.ID, err)
	}

	if op.State.IsTerminal() && op.Result != nil {
		now := time.Now()
		for _, failed := range op.Result.FailedElements {
			failure := &stores.OperationFailure{
				OperationID: op.ID,
				ElementID:   failed.ElementID,
				ElementName: failed.ElementName,
				Reason:      failed.Reason,
				Attempts:    failed.Attempts,
				Timestamp:   now,
			}
			if err := r.store.AppendOperationFailure(ctx, failure); err != nil {
				return fmt.Errorf("failed to record failure for %s: %w", failed.ElementID, err)
			}
		}
	}

	return nil
}
