package document

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openrestyle/openrestyle/pkg/engine"
	"github.com/openrestyle/openrestyle/pkg/stores"
	"github.com/openrestyle/openrestyle/pkg/telemetry"
)

// StoreCheckpointProvider implements engine.CheckpointProvider by
// snapshotting every element assignment of the document into the checkpoint
// tables. The store's per-operation uniqueness constraint backs the engine's
// exactly-once guarantee.
type StoreCheckpointProvider struct {
	store  stores.Store
	logger zerolog.Logger
}

// NewStoreCheckpointProvider creates a store-backed checkpoint provider.
func NewStoreCheckpointProvider(store stores.Store, logger zerolog.Logger) *StoreCheckpointProvider {
	return &StoreCheckpointProvider{
		store:  store,
		logger: logger.With().Str("component", "checkpoint-provider").Logger(),
	}
}

// CreateCheckpoint snapshots the document's assignments under the given
// title. The snapshot is traced as a checkpoint span when the context
// carries telemetry.
func (p *StoreCheckpointProvider) CreateCheckpoint(ctx context.Context, documentID, operationID, title string) (*engine.Checkpoint, error) {
	var result *engine.Checkpoint

	err := telemetry.RecordCheckpoint(ctx, operationID, documentID, func(ctx context.Context) error {
		checkpoint, err := p.createCheckpoint(ctx, documentID, operationID, title)
		if err != nil {
			return err
		}
		result = checkpoint
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (p *StoreCheckpointProvider) createCheckpoint(ctx context.Context, documentID, operationID, title string) (*engine.Checkpoint, error) {
	bindings, err := p.store.ListElementAssignmentsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot document %s: %w", documentID, err)
	}

	entries := make([]*stores.CheckpointEntry, len(bindings))
	for i, binding := range bindings {
		entries[i] = &stores.CheckpointEntry{
			ElementID:    binding.ElementID,
			Kind:         binding.Kind,
			AssignmentID: binding.AssignmentID,
		}
	}

	checkpoint := &stores.Checkpoint{
		ID:          uuid.New().String(),
		DocumentID:  documentID,
		OperationID: operationID,
		Title:       title,
		CreatedAt:   time.Now(),
	}
	if err := p.store.CreateCheckpoint(ctx, checkpoint, entries); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("document_id", documentID).
		Str("operation_id", operationID).
		Int("entries", len(entries)).
		Str("title", title).
		Msg("Checkpoint created")

	return &engine.Checkpoint{
		Title:     checkpoint.Title,
		Timestamp: checkpoint.CreatedAt,
	}, nil
}
