package document

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/openrestyle/openrestyle/pkg/stores"
)

// Snapshot is the on-disk export format of a design document: the catalog of
// styles and tokens plus every element and its assignments, page by page.
type Snapshot struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Styles []SnapshotCatalog `json:"styles,omitempty"`
	Tokens []SnapshotCatalog `json:"tokens,omitempty"`
	Pages  []SnapshotPage    `json:"pages"`
}

// SnapshotCatalog is one style or token definition.
type SnapshotCatalog struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Locked bool   `json:"locked,omitempty"`
}

// SnapshotPage groups elements under a page name.
type SnapshotPage struct {
	Name     string            `json:"name"`
	Elements []SnapshotElement `json:"elements"`
}

// SnapshotElement is one element with its optional assignments.
type SnapshotElement struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Style string `json:"style,omitempty"`
	Token string `json:"token,omitempty"`
}

// LoadSnapshot parses a document export file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	if snapshot.ID == "" {
		return nil, fmt.Errorf("snapshot %s has no document id", path)
	}

	return &snapshot, nil
}

// ImportSnapshot loads a document export into the store: the document record,
// its catalogs, and every element with its assignments. Re-importing updates
// existing rows in place.
func ImportSnapshot(ctx context.Context, store stores.Store, path string) (*stores.Document, error) {
	snapshot, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	doc := &stores.Document{
		ID:         snapshot.ID,
		Name:       snapshot.Name,
		SourcePath: path,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	catalog := func(kind stores.AssignmentKind, entries []SnapshotCatalog) error {
		for _, entry := range entries {
			assignment := &stores.Assignment{
				ID:         entry.ID,
				DocumentID: snapshot.ID,
				Kind:       kind,
				Name:       entry.Name,
				Locked:     entry.Locked,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := store.UpsertAssignment(ctx, assignment); err != nil {
				return err
			}
		}
		return nil
	}
	if err := catalog(stores.AssignmentKindStyle, snapshot.Styles); err != nil {
		return nil, err
	}
	if err := catalog(stores.AssignmentKindToken, snapshot.Tokens); err != nil {
		return nil, err
	}

	for _, page := range snapshot.Pages {
		for _, element := range page.Elements {
			record := &stores.Element{
				ID:         element.ID,
				DocumentID: snapshot.ID,
				Name:       element.Name,
				NodeType:   element.Type,
				PageName:   page.Name,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := store.UpsertElement(ctx, record); err != nil {
				return nil, err
			}

			if element.Style != "" {
				binding := &stores.ElementAssignment{
					ElementID:    element.ID,
					Kind:         stores.AssignmentKindStyle,
					AssignmentID: element.Style,
					UpdatedAt:    now,
				}
				if err := store.SetElementAssignment(ctx, binding); err != nil {
					return nil, err
				}
			}
			if element.Token != "" {
				binding := &stores.ElementAssignment{
					ElementID:    element.ID,
					Kind:         stores.AssignmentKindToken,
					AssignmentID: element.Token,
					UpdatedAt:    now,
				}
				if err := store.SetElementAssignment(ctx, binding); err != nil {
					return nil, err
				}
			}
		}
	}

	return doc, nil
}
