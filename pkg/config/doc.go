// Package config provides application settings and CUE job file parsing
// for openrestyle.
//
// # Overview
//
// The config package covers the two configuration surfaces of openrestyle:
// a YAML settings file for application tuning, and CUE job files declaring
// replacement jobs.
//
// # Features
//
//   - YAML settings with validation and engine-default fallbacks
//   - CUE job parsing from files, directories, and inline content
//   - Schema validation with a built-in job schema
//   - Error reporting with file locations and line numbers
//
// # Components
//
// Settings: Application configuration loaded from YAML and validated with
// struct tags. Produces the engine retry policy and telemetry configuration.
//
// CUEParser: Parser for CUE replacement-job files. A job file declares the
// document, assignment kind, source, and target of a bulk replacement.
//
// SchemaRegistry: Manages CUE schemas for validation. Provides a built-in
// job schema and supports custom schema registration.
//
// # Usage Example
//
//	// Load application settings
//	settings, err := config.LoadSettings("openrestyle.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Parse a job file
//	parser := config.NewCUEParser()
//	jobs, err := parser.LoadJobs(ctx, []string{"retire-old-heading.cue"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Job File Structure
//
// A job file declares one or more replacement jobs:
//
//	jobs: {
//	    retire_old_heading: {
//	        document: "doc-1"
//	        kind:     "style"
//	        source:   "old-heading"
//	        target:   "new-heading"
//	        checkpoint_title: "Before heading migration"
//	    }
//	}
//
// A file may also declare a single job at the top level:
//
//	document: "doc-1"
//	kind:     "token"
//	source:   "color/old-accent"
//	target:   "color/new-accent"
//
// # Settings File Structure
//
//	store:
//	  path: openrestyle.db
//	engine:
//	  retry_attempts: 3
//	  retry_delays: [250ms, 500ms, 1s]
//	telemetry:
//	  log_level: info
//	  log_format: console
//
// # Error Handling
//
// All parsing and validation errors include detailed location information:
//
//	ValidationError{
//	    File: "jobs.cue",
//	    Line: 42,
//	    Column: 5,
//	    Path: "jobs.retire_old_heading",
//	    Message: "field 'target' is required",
//	    Severity: "error",
//	}
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package config
