package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	// Register built-in schemas
	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	// Register job schema
	sr.RegisterSchema("job", builtinJobSchema)

	// Register job file schema
	sr.RegisterSchema("jobfile", builtinJobFileSchema)
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// Convert data to CUE value
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	// Unify with schema (validates)
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions

const builtinJobSchema = `
// Job schema for replacement job definitions
{
	// Document is the document the replacement runs against
	document: string & =~"^[a-zA-Z0-9_:-]+$"

	// Kind is the assignment class being replaced
	kind: "style" | "token"

	// Source is the assignment being replaced
	source: string & !=""

	// Target is the assignment that replaces it
	target: string & !=""

	// CheckpointTitle overrides the generated checkpoint title
	checkpoint_title?: string

	// Operator is the user running the job
	operator?: string
}
`

const builtinJobFileSchema = `
// Job file schema: a named set of replacement jobs
{
	jobs: {[string]: {
		document:         string
		kind:             "style" | "token"
		source:           string
		target:           string
		checkpoint_title?: string
		operator?:        string
	}}
}
`

// ValidateJob validates a job configuration against the job schema.
func (sr *SchemaRegistry) ValidateJob(ctx context.Context, job JobConfig) error {
	return sr.ValidateAgainstSchema(ctx, "job", job)
}
