package policy

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openrestyle/openrestyle/pkg/engine"
	"github.com/openrestyle/openrestyle/pkg/stores"
)

func newGateFixture(t *testing.T) *Gate {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{
		Path: filepath.Join(t.TempDir(), "gate_test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate store: %v", err)
	}

	if err := store.UpsertDocument(ctx, &stores.Document{
		ID:   "doc-1",
		Name: "Landing page",
	}); err != nil {
		t.Fatalf("Failed to upsert document: %v", err)
	}

	seed := []stores.Assignment{
		{ID: "heading-2", DocumentID: "doc-1", Kind: stores.AssignmentKindStyle, Name: "Heading 2"},
		{ID: "heading-3", DocumentID: "doc-1", Kind: stores.AssignmentKindStyle, Name: "Heading 3"},
		{ID: "brand-lock", DocumentID: "doc-1", Kind: stores.AssignmentKindStyle, Name: "Brand Heading", Locked: true},
		{ID: "accent-500", DocumentID: "doc-1", Kind: stores.AssignmentKindToken, Name: "Accent 500"},
	}
	for i := range seed {
		if err := store.UpsertAssignment(ctx, &seed[i]); err != nil {
			t.Fatalf("Failed to upsert assignment %s: %v", seed[i].ID, err)
		}
	}

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	policyEngine, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	return NewGate(policyEngine, store, logger)
}

func gateRequest(sourceID, targetID string, affected int) *engine.ReplacementRequest {
	elements := make([]engine.ElementRef, affected)
	for i := range elements {
		elements[i] = engine.ElementRef{ID: string(rune('a' + i%26))}
	}
	return &engine.ReplacementRequest{
		Kind:       engine.KindStyle,
		DocumentID: "doc-1",
		SourceID:   sourceID,
		TargetID:   targetID,
		Elements:   elements,
		Operator:   "tester",
	}
}

func TestGateAllow_CleanRequest(t *testing.T) {
	gate := newGateFixture(t)

	if err := gate.Allow(context.Background(), gateRequest("heading-2", "heading-3", 5)); err != nil {
		t.Fatalf("Expected clean request to pass, got: %v", err)
	}
}

func TestGateAllow_LockedAssignment(t *testing.T) {
	gate := newGateFixture(t)

	err := gate.Allow(context.Background(), gateRequest("brand-lock", "heading-3", 5))
	if err == nil {
		t.Fatal("Expected locked source to be denied")
	}
	if !strings.Contains(err.Error(), "denied by policy") {
		t.Errorf("Expected denial error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "locked") {
		t.Errorf("Expected locked violation message, got: %v", err)
	}

	err = gate.Allow(context.Background(), gateRequest("heading-2", "brand-lock", 5))
	if err == nil {
		t.Fatal("Expected locked target to be denied")
	}
}

func TestGateAllow_CrossKind(t *testing.T) {
	gate := newGateFixture(t)

	// accent-500 is a token; the request asks for a style replacement.
	err := gate.Allow(context.Background(), gateRequest("heading-2", "accent-500", 5))
	if err == nil {
		t.Fatal("Expected cross-kind target to be denied")
	}
	if !strings.Contains(err.Error(), "token") {
		t.Errorf("Expected cross-kind violation message, got: %v", err)
	}
}

func TestGateAllow_AffectedCountCap(t *testing.T) {
	gate := newGateFixture(t)
	gate.MaxAffected = 10

	if err := gate.Allow(context.Background(), gateRequest("heading-2", "heading-3", 10)); err != nil {
		t.Fatalf("Expected request at the cap to pass, got: %v", err)
	}

	err := gate.Allow(context.Background(), gateRequest("heading-2", "heading-3", 11))
	if err == nil {
		t.Fatal("Expected request above the cap to be denied")
	}
	if !strings.Contains(err.Error(), "cap") {
		t.Errorf("Expected cap violation message, got: %v", err)
	}
}

func TestGateAllow_UnknownAssignments(t *testing.T) {
	gate := newGateFixture(t)

	// The gate only enforces policy. Missing catalog entries are the
	// validator's problem, not a denial.
	if err := gate.Allow(context.Background(), gateRequest("no-such", "heading-3", 5)); err != nil {
		t.Fatalf("Expected unknown source to pass the gate, got: %v", err)
	}
}
