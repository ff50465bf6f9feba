package document

import (
	"context"
	"fmt"

	"github.com/openrestyle/openrestyle/pkg/engine"
	"github.com/openrestyle/openrestyle/pkg/stores"
)

// AssignmentUsage pairs one catalog assignment with the number of elements
// carrying it.
type AssignmentUsage struct {
	Assignment *stores.Assignment `json:"assignment"`
	Count      int                `json:"count"`
}

// Auditor produces read-only usage reports and the affected-element lists
// replacement operations run against. Lists are ordered by element ID and
// duplicate free.
type Auditor struct {
	store stores.Store
}

// NewAuditor creates an auditor over the given store.
func NewAuditor(store stores.Store) *Auditor {
	return &Auditor{store: store}
}

// Usage reports every catalog assignment of the given kind with its element
// count, including unused assignments.
func (a *Auditor) Usage(ctx context.Context, documentID string, kind engine.OperationKind) ([]AssignmentUsage, error) {
	assignments, err := a.store.ListAssignments(ctx, documentID, assignmentKind(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	usages := make([]AssignmentUsage, 0, len(assignments))
	for _, assignment := range assignments {
		count, err := a.store.CountElementsByAssignment(ctx, documentID, assignment.Kind, assignment.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count usage of %s: %w", assignment.ID, err)
		}
		usages = append(usages, AssignmentUsage{Assignment: assignment, Count: count})
	}

	return usages, nil
}

// AffectedElements returns the ordered list of elements carrying the given
// assignment, in the shape the engine consumes.
func (a *Auditor) AffectedElements(ctx context.Context, documentID string, kind engine.OperationKind, assignmentID string) ([]engine.ElementRef, error) {
	elements, err := a.store.ListElementsByAssignment(ctx, documentID, assignmentKind(kind), assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list affected elements: %w", err)
	}

	refs := make([]engine.ElementRef, len(elements))
	for i, element := range elements {
		refs[i] = engine.ElementRef{ID: element.ID, Name: element.Name}
	}

	return refs, nil
}
