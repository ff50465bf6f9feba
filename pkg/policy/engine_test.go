package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrestyle/openrestyle/pkg/engine"
)

func testInput(kind engine.OperationKind, affected int) *Input {
	return &Input{
		Request: &engine.ReplacementRequest{
			Kind:       kind,
			DocumentID: "doc-1",
			SourceID:   "heading-2",
			TargetID:   "heading-3",
		},
		Source: &AssignmentInfo{
			ID:   "heading-2",
			Kind: string(kind),
			Name: "Heading 2",
		},
		Target: &AssignmentInfo{
			ID:   "heading-3",
			Kind: string(kind),
			Name: "Heading 3",
		},
		AffectedCount: affected,
		Context: &Context{
			Operator:  "tester",
			Timestamp: time.Now(),
		},
	}
}

func TestNewEngine(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if eng == nil {
		t.Fatal("Engine is nil")
	}

	// Check that built-in policies are loaded
	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"locked-assignments",
		"affected-count-cap",
		"cross-kind",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestEvaluate_CleanRequest(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	result, err := eng.Evaluate(context.Background(), testInput(engine.KindStyle, 42))
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("Expected clean request to be allowed, violations: %+v", result.Violations)
	}

	if len(result.Violations) != 0 {
		t.Errorf("Expected no violations, got %d", len(result.Violations))
	}

	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}
}

func TestEvaluate_LockedAssignments(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name          string
		lockSource    bool
		lockTarget    bool
		expectAllowed bool
	}{
		{
			name:          "neither locked",
			expectAllowed: true,
		},
		{
			name:          "locked source",
			lockSource:    true,
			expectAllowed: false,
		},
		{
			name:          "locked target",
			lockTarget:    true,
			expectAllowed: false,
		},
		{
			name:          "both locked",
			lockSource:    true,
			lockTarget:    true,
			expectAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := testInput(engine.KindStyle, 10)
			input.Source.Locked = tt.lockSource
			input.Target.Locked = tt.lockTarget

			result, err := eng.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}

			if !tt.expectAllowed {
				found := false
				for _, v := range result.Violations {
					if v.Policy == "locked-assignments" {
						found = true
						break
					}
				}
				if !found {
					t.Error("Expected a locked-assignments violation")
				}
			}
		})
	}
}

func TestEvaluate_AffectedCountCap(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name          string
		affected      int
		maxAffected   int
		expectAllowed bool
	}{
		{
			name:          "under default cap",
			affected:      9999,
			expectAllowed: true,
		},
		{
			name:          "at default cap",
			affected:      10000,
			expectAllowed: true,
		},
		{
			name:          "over default cap",
			affected:      10001,
			expectAllowed: false,
		},
		{
			name:          "under lowered cap",
			affected:      40,
			maxAffected:   50,
			expectAllowed: true,
		},
		{
			name:          "over lowered cap",
			affected:      100,
			maxAffected:   50,
			expectAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := testInput(engine.KindStyle, tt.affected)
			input.Context.MaxAffected = tt.maxAffected

			result, err := eng.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}
		})
	}
}

func TestEvaluate_CrossKind(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name          string
		sourceKind    string
		targetKind    string
		expectAllowed bool
	}{
		{
			name:          "matching kinds",
			sourceKind:    "style",
			targetKind:    "style",
			expectAllowed: true,
		},
		{
			name:          "token source on style request",
			sourceKind:    "token",
			targetKind:    "style",
			expectAllowed: false,
		},
		{
			name:          "token target on style request",
			sourceKind:    "style",
			targetKind:    "token",
			expectAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := testInput(engine.KindStyle, 10)
			input.Source.Kind = tt.sourceKind
			input.Target.Kind = tt.targetKind

			result, err := eng.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}
		})
	}
}

func TestEvaluate_MissingCatalogEntries(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	// Without catalog entries the locked and cross-kind policies cannot fire.
	input := testInput(engine.KindToken, 10)
	input.Source = nil
	input.Target = nil

	result, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("Expected request without catalog entries to be allowed, violations: %+v", result.Violations)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policyName := "locked-assignments"

	input := testInput(engine.KindStyle, 10)
	input.Source.Locked = true

	// Disable the policy
	if err := eng.DisablePolicy(policyName); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	policy, err := eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}
	if policy.Enabled {
		t.Error("Policy should be disabled")
	}

	result, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected locked source to pass with policy disabled, violations: %+v", result.Violations)
	}

	// Re-enable the policy
	if err := eng.EnablePolicy(policyName); err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}

	result, err = eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected locked source to be denied with policy enabled")
	}

	if err := eng.DisablePolicy("no-such-policy"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestGetPolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policy, err := eng.GetPolicy("affected-count-cap")
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}
	if policy.Severity != SeverityError {
		t.Errorf("Expected severity error, got %s", policy.Severity)
	}

	if _, err := eng.GetPolicy("no-such-policy"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestReloadPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	initialCount := len(eng.ListPolicies())

	if err := eng.DisablePolicy("cross-kind"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	if err := eng.ReloadPolicies(context.Background()); err != nil {
		t.Fatalf("Failed to reload policies: %v", err)
	}

	if got := len(eng.ListPolicies()); got != initialCount {
		t.Errorf("Expected %d policies after reload, got %d", initialCount, got)
	}

	policy, err := eng.GetPolicy("cross-kind")
	if err != nil {
		t.Fatalf("Failed to get policy after reload: %v", err)
	}
	if !policy.Enabled {
		t.Error("Expected reload to restore the built-in enabled state")
	}
}

func TestListPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policies := eng.ListPolicies()

	if len(policies) == 0 {
		t.Fatal("No policies returned")
	}

	// Check that all policies have required fields
	for _, p := range policies {
		if p.Name == "" {
			t.Error("Policy has empty name")
		}
		if p.Rego == "" {
			t.Error("Policy has empty Rego code")
		}
		if p.CreatedAt.IsZero() {
			t.Error("Policy has zero CreatedAt")
		}
	}
}

func TestLoadPolicies_CustomRego(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "catalog-source.rego")

	regoContent := `package custom.policies.naming

import rego.v1

deny contains violation if {
	input.target
	not startswith(input.target.id, "ds2/")
	violation := {
		"message": "Replacement targets must come from the ds2 catalog",
		"severity": "error",
	}
}`

	if err := os.WriteFile(policyFile, []byte(regoContent), 0644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{policyFile}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	input := testInput(engine.KindStyle, 10)
	result, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected custom policy to deny an off-catalog target")
	}

	input.Target.ID = "ds2/heading-3"
	result, err = eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected ds2 target to pass, violations: %+v", result.Violations)
	}
}

func TestWatchPoliciesReloadsOnChange(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "catalog-source.rego")

	permissive := `package custom.policies.naming

import rego.v1

deny contains violation if {
	input.target
	not startswith(input.target.id, "heading")
	violation := {
		"message": "Replacement targets must be headings",
		"severity": "error",
	}
}`

	if err := os.WriteFile(policyFile, []byte(permissive), 0644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{tmpDir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.WatchPolicies(watchCtx, []string{tmpDir}); err != nil {
		t.Fatalf("Failed to start watching: %v", err)
	}

	result, err := eng.Evaluate(context.Background(), testInput(engine.KindStyle, 10))
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("Expected heading target to pass before reload, violations: %+v", result.Violations)
	}

	restrictive := `package custom.policies.naming

import rego.v1

deny contains violation if {
	input.target
	violation := {
		"message": "All replacements are frozen",
		"severity": "error",
	}
}`

	if err := os.WriteFile(policyFile, []byte(restrictive), 0644); err != nil {
		t.Fatalf("Failed to rewrite policy file: %v", err)
	}

	// The watcher debounces reloads; poll until the new rule takes effect.
	deadline := time.Now().Add(10 * time.Second)
	for {
		result, err = eng.Evaluate(context.Background(), testInput(engine.KindStyle, 10))
		if err != nil {
			t.Fatalf("Evaluation failed: %v", err)
		}
		if !result.Allowed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Rewritten policy never took effect")
		}
		time.Sleep(50 * time.Millisecond)
	}

	found := false
	for _, v := range result.Violations {
		if v.Message == "All replacements are frozen" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected reloaded rule in violations, got: %+v", result.Violations)
	}

	// Built-in policies survive the swap.
	if _, err := eng.GetPolicy("locked-assignments"); err != nil {
		t.Errorf("Built-in policy lost after reload: %v", err)
	}
}
