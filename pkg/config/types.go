package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openrestyle/openrestyle/pkg/engine"
)

// Duration is a time.Duration that unmarshals from YAML strings like "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Settings is the application configuration loaded from YAML.
type Settings struct {
	// Store configures the SQLite catalog store.
	Store StoreSettings `yaml:"store"`

	// Engine configures the replacement engine tuning.
	Engine EngineSettings `yaml:"engine"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetrySettings `yaml:"telemetry"`

	// Watcher configures document staleness detection.
	Watcher WatcherSettings `yaml:"watcher"`
}

// StoreSettings configures the catalog store.
type StoreSettings struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" validate:"required"`

	// BusyTimeout is the SQLite busy timeout.
	BusyTimeout Duration `yaml:"busy_timeout"`
}

// EngineSettings tunes the replacement engine. Zero values fall back to the
// engine defaults.
type EngineSettings struct {
	// RetryAttempts is the total mutation attempts per element, including
	// the first.
	RetryAttempts int `yaml:"retry_attempts" validate:"omitempty,min=1,max=10"`

	// RetryDelays are the waits before each retry, in order. When the list
	// is shorter than the retry count, the last delay repeats.
	RetryDelays []Duration `yaml:"retry_delays"`
}

// TelemetrySettings overrides the telemetry defaults.
type TelemetrySettings struct {
	// LogLevel sets the minimum log level.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal"`

	// LogFormat selects console or json output.
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=console json"`

	// LogOutput is stdout, stderr, or a file path.
	LogOutput string `yaml:"log_output"`

	// MetricsListenAddress is the Prometheus endpoint address.
	MetricsListenAddress string `yaml:"metrics_listen_address"`

	// TracingExporter selects the trace exporter (otlp, stdout, none).
	TracingExporter string `yaml:"tracing_exporter" validate:"omitempty,oneof=otlp stdout none"`

	// TracingEndpoint is the OTLP collector endpoint.
	TracingEndpoint string `yaml:"tracing_endpoint"`
}

// WatcherSettings configures the staleness watcher.
type WatcherSettings struct {
	// Enabled controls whether document source files are watched.
	Enabled bool `yaml:"enabled"`
}

// JobConfig is one replacement job declared in a CUE job file.
type JobConfig struct {
	// Document is the document the replacement runs against.
	Document string `json:"document" validate:"required"`

	// Kind is the assignment class being replaced (style or token).
	Kind string `json:"kind" validate:"required,oneof=style token"`

	// Source is the assignment being replaced.
	Source string `json:"source" validate:"required"`

	// Target is the assignment that replaces it.
	Target string `json:"target" validate:"required"`

	// CheckpointTitle overrides the generated checkpoint title.
	CheckpointTitle string `json:"checkpoint_title,omitempty"`

	// Operator is the user running the job.
	Operator string `json:"operator,omitempty"`
}

// ToRequest converts the job to an engine request. The affected-element list
// is filled in by the audit layer before execution.
func (jc JobConfig) ToRequest() engine.ReplacementRequest {
	return engine.ReplacementRequest{
		Kind:            engine.OperationKind(jc.Kind),
		DocumentID:      jc.Document,
		SourceID:        jc.Source,
		TargetID:        jc.Target,
		CheckpointTitle: jc.CheckpointTitle,
		Operator:        jc.Operator,
	}
}

// ParsedJobs is the result of parsing one or more CUE job files.
type ParsedJobs struct {
	// Jobs are the replacement jobs, in declaration order.
	Jobs []JobConfig `json:"jobs"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the job files were parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "jobs.retire_old_heading").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}
