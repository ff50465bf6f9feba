package document

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openrestyle/openrestyle/pkg/engine"
	"github.com/openrestyle/openrestyle/pkg/stores"
)

// StoreApplier implements engine.MutationApplier against the SQLite store.
// Each mutation is a conditional single-row update: it fails when the element
// no longer carries the source assignment, which is exactly the per-element
// failure the retry engine is built for.
type StoreApplier struct {
	store  stores.Store
	logger zerolog.Logger
}

// NewStoreApplier creates a store-backed mutation applier.
func NewStoreApplier(store stores.Store, logger zerolog.Logger) *StoreApplier {
	return &StoreApplier{
		store:  store,
		logger: logger.With().Str("component", "store-applier").Logger(),
	}
}

// ApplyReplacement swaps the source assignment for the target on one element.
func (a *StoreApplier) ApplyReplacement(ctx context.Context, documentID string, kind engine.OperationKind, elementID, sourceID, targetID string) error {
	if err := a.store.ReplaceElementAssignment(ctx, elementID, assignmentKind(kind), sourceID, targetID); err != nil {
		a.logger.Debug().
			Err(err).
			Str("document_id", documentID).
			Str("element_id", elementID).
			Msg("Element mutation failed")
		return err
	}
	return nil
}

// ResolveAssignment reports whether the identifier names a catalog entry of
// the given kind in this document.
func (a *StoreApplier) ResolveAssignment(ctx context.Context, documentID string, kind engine.OperationKind, assignmentID string) (bool, error) {
	return a.store.AssignmentExists(ctx, documentID, assignmentKind(kind), assignmentID)
}

// assignmentKind maps the engine's operation kind onto the store's enum.
func assignmentKind(kind engine.OperationKind) stores.AssignmentKind {
	if kind == engine.KindToken {
		return stores.AssignmentKindToken
	}
	return stores.AssignmentKindStyle
}
