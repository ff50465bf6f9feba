package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
)

// CUEParser parses and validates CUE replacement-job files.
type CUEParser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
	validator      *validator.Validate
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{
		ctx:            cuecontext.New(),
		schemaRegistry: NewSchemaRegistry(),
		validator:      validator.New(),
	}
}

// LoadJobs parses CUE job files and returns the declared replacement jobs.
// Parse or validation errors fail the load; job files with errors must not
// reach the engine.
func (cp *CUEParser) LoadJobs(ctx context.Context, sources []string) ([]JobConfig, error) {
	parsed, err := cp.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}

	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("validation errors: %v", parsed.Errors)
	}

	if len(parsed.Jobs) == 0 {
		return nil, fmt.Errorf("no jobs declared in %s", strings.Join(parsed.SourceFiles, ", "))
	}

	return parsed.Jobs, nil
}

// Parse parses CUE job files from the given sources.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*ParsedJobs, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	// Determine if sources are files or directories
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			// Load directory as CUE package
			val, files, errs := cp.loadDirectory(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, files...)
		} else {
			// Load single file
			val, errs := cp.loadFile(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, source)
		}
	}

	// Check for parse errors
	if len(parseErrors) > 0 {
		return &ParsedJobs{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	// Validate the unified value
	if err := cueValue.Err(); err != nil {
		parseErrors = append(parseErrors, cp.convertCUEErrors(err)...)
		return &ParsedJobs{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	// Extract jobs
	parsed, err := cp.extractJobs(cueValue, sourceFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to extract jobs: %w", err)
	}

	return parsed, nil
}

// loadDirectory loads a directory as a CUE package.
func (cp *CUEParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	// Load the package
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(err)
	}

	// Get list of files
	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := cp.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, cp.convertCUEErrors(err)
	}

	return val, nil
}

// extractJobs extracts the replacement jobs from a CUE value. Jobs can be
// declared either as a "jobs" map or list, or as a single job at the top
// level of the file.
func (cp *CUEParser) extractJobs(val cue.Value, sourceFiles []string) (*ParsedJobs, error) {
	parsed := &ParsedJobs{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	jobsVal := val.LookupPath(cue.ParsePath("jobs"))
	if !jobsVal.Exists() {
		// Single top-level job
		job, err := cp.extractJob(val)
		if err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:     "job",
				Message:  err.Error(),
				Severity: "error",
			})
		} else {
			parsed.Jobs = append(parsed.Jobs, job)
		}
		return parsed, nil
	}

	switch jobsVal.Kind() {
	case cue.StructKind:
		// Map of jobs keyed by a human-readable name
		iter, err := jobsVal.Fields(cue.All())
		if err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:     "jobs",
				Message:  fmt.Sprintf("failed to iterate jobs: %v", err),
				Severity: "error",
			})
			return parsed, nil
		}
		for iter.Next() {
			job, err := cp.extractJob(iter.Value())
			if err != nil {
				parsed.Errors = append(parsed.Errors, ValidationError{
					Path:     fmt.Sprintf("jobs.%s", iter.Selector()),
					Message:  err.Error(),
					Severity: "error",
				})
			} else {
				parsed.Jobs = append(parsed.Jobs, job)
			}
		}

	case cue.ListKind:
		// List of jobs
		list, err := jobsVal.List()
		if err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:     "jobs",
				Message:  fmt.Sprintf("failed to list jobs: %v", err),
				Severity: "error",
			})
			return parsed, nil
		}
		idx := 0
		for list.Next() {
			job, err := cp.extractJob(list.Value())
			if err != nil {
				parsed.Errors = append(parsed.Errors, ValidationError{
					Path:     fmt.Sprintf("jobs[%d]", idx),
					Message:  err.Error(),
					Severity: "error",
				})
			} else {
				parsed.Jobs = append(parsed.Jobs, job)
			}
			idx++
		}

	default:
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:     "jobs",
			Message:  "jobs must be a struct or a list",
			Severity: "error",
		})
	}

	return parsed, nil
}

// extractJob extracts one job configuration from a CUE value.
func (cp *CUEParser) extractJob(val cue.Value) (JobConfig, error) {
	var job JobConfig

	// Decode the job
	if err := val.Decode(&job); err != nil {
		return job, fmt.Errorf("failed to decode job: %w", err)
	}

	// Validate using struct tags
	if err := cp.validator.Struct(job); err != nil {
		return job, fmt.Errorf("validation failed: %w", err)
	}

	return job, nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	// Handle CUE error types
	errs := errors.Errors(err)
	for _, e := range errs {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// ParseInline parses inline CUE content.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*ParsedJobs, error) {
	val := cp.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ParsedJobs{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      cp.convertCUEErrors(err),
		}, nil
	}

	return cp.extractJobs(val, []string{"inline"})
}

// ValidateWithSchema validates a CUE value against a schema.
func (cp *CUEParser) ValidateWithSchema(ctx context.Context, data interface{}, schemaName string) error {
	return cp.schemaRegistry.ValidateAgainstSchema(ctx, schemaName, data)
}

// GetSchemaRegistry returns the schema registry.
func (cp *CUEParser) GetSchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}

// ExtractValue extracts a specific path from a CUE value.
func (cp *CUEParser) ExtractValue(val cue.Value, path string) (interface{}, error) {
	v := val.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return nil, fmt.Errorf("path %s not found", path)
	}

	var result interface{}
	if err := v.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode value at %s: %w", path, err)
	}

	return result, nil
}

// ExportJSON exports a CUE value to JSON.
func (cp *CUEParser) ExportJSON(val cue.Value) ([]byte, error) {
	var data interface{}
	if err := val.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	return json.MarshalIndent(data, "", "  ")
}

// LoadFromDirectory lists all CUE files under a directory.
func (cp *CUEParser) LoadFromDirectory(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}
