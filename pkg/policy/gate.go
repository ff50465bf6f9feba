package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrestyle/openrestyle/pkg/engine"
	"github.com/openrestyle/openrestyle/pkg/stores"
)

// Gate enforces policies on replacement requests. It implements
// engine.PolicyGate: the catalog entries for the source and target
// assignments are loaded from the store and handed to the Rego policies
// together with the request.
type Gate struct {
	engine *Engine
	store  stores.Store
	logger zerolog.Logger

	// MaxAffected overrides the built-in affected-count cap when positive.
	MaxAffected int
}

// NewGate creates a policy gate backed by the given engine and store.
func NewGate(policyEngine *Engine, store stores.Store, logger zerolog.Logger) *Gate {
	return &Gate{
		engine: policyEngine,
		store:  store,
		logger: logger.With().Str("component", "policy-gate").Logger(),
	}
}

// Allow returns nil when the request passes all enabled policies. A denial
// error lists every blocking violation.
func (g *Gate) Allow(ctx context.Context, req *engine.ReplacementRequest) error {
	input := &Input{
		Request:       req,
		AffectedCount: len(req.Elements),
		Context: &Context{
			Operator:    req.Operator,
			Timestamp:   time.Now(),
			MaxAffected: g.MaxAffected,
		},
	}

	// Catalog lookups are best-effort: a missing assignment is caught by
	// structural validation, not by the gate.
	input.Source = g.lookupAssignment(ctx, req.DocumentID, stores.AssignmentKind(req.Kind), req.SourceID)
	input.Target = g.lookupAssignment(ctx, req.DocumentID, stores.AssignmentKind(req.Kind), req.TargetID)

	result, err := g.engine.Evaluate(ctx, input)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	for _, warning := range result.Warnings {
		g.logger.Warn().Str("document", req.DocumentID).Msg(warning)
	}

	if result.Allowed {
		return nil
	}

	messages := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		if v.Severity == SeverityError || v.Severity == SeverityCritical {
			messages = append(messages, v.Message)
		}
	}
	return fmt.Errorf("denied by policy: %s", strings.Join(messages, "; "))
}

// lookupAssignment finds the catalog entry for an assignment. The catalog is
// kind-namespaced, so an identifier filed under the other kind is also tried;
// the cross-kind policy needs to see its real kind to deny the request.
func (g *Gate) lookupAssignment(ctx context.Context, documentID string, kind stores.AssignmentKind, id string) *AssignmentInfo {
	if a, err := g.store.GetAssignment(ctx, documentID, kind, id); err == nil {
		return assignmentInfo(a)
	}

	other := stores.AssignmentKindToken
	if kind == stores.AssignmentKindToken {
		other = stores.AssignmentKindStyle
	}
	if a, err := g.store.GetAssignment(ctx, documentID, other, id); err == nil {
		return assignmentInfo(a)
	}

	return nil
}

// assignmentInfo converts a catalog row to the policy input shape.
func assignmentInfo(a *stores.Assignment) *AssignmentInfo {
	return &AssignmentInfo{
		ID:     a.ID,
		Kind:   string(a.Kind),
		Name:   a.Name,
		Locked: a.Locked,
	}
}
