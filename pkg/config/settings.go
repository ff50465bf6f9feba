package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openrestyle/openrestyle/pkg/engine"
	"github.com/openrestyle/openrestyle/pkg/stores"
	"github.com/openrestyle/openrestyle/pkg/telemetry"
)

// DefaultSettings returns settings matching the engine defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Store: StoreSettings{
			Path: "openrestyle.db",
		},
		Engine: EngineSettings{},
		Telemetry: TelemetrySettings{
			LogLevel:        "info",
			LogFormat:       "console",
			LogOutput:       "stderr",
			TracingExporter: "none",
		},
		Watcher: WatcherSettings{
			Enabled: true,
		},
	}
}

// LoadSettings reads and validates a YAML settings file. Fields absent from
// the file keep their defaults.
func LoadSettings(path string) (*Settings, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(content, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}

	return settings, nil
}

// Validate checks the settings against their struct tags.
func (s *Settings) Validate() error {
	return validator.New().Struct(s)
}

// RetryPolicy builds the engine retry policy from the settings. Unset fields
// fall back to the engine defaults.
func (s *Settings) RetryPolicy() engine.RetryPolicy {
	policy := engine.DefaultRetryPolicy()
	if s.Engine.RetryAttempts > 0 {
		policy.MaxAttempts = s.Engine.RetryAttempts
	}
	if len(s.Engine.RetryDelays) > 0 {
		delays := make([]time.Duration, len(s.Engine.RetryDelays))
		for i, d := range s.Engine.RetryDelays {
			delays[i] = time.Duration(d)
		}
		policy.Delays = delays
	}
	return policy
}

// StoreConfig builds the SQLite store configuration.
func (s *Settings) StoreConfig() stores.Config {
	return stores.Config{
		Path:        s.Store.Path,
		BusyTimeout: time.Duration(s.Store.BusyTimeout),
	}
}

// TelemetryConfig builds a telemetry configuration with the settings
// overrides applied.
func (s *Settings) TelemetryConfig() *telemetry.Config {
	cfg := telemetry.DefaultConfig()

	if s.Telemetry.LogLevel != "" {
		cfg.Logging.Level = s.Telemetry.LogLevel
	}
	if s.Telemetry.LogFormat != "" {
		cfg.Logging.Format = s.Telemetry.LogFormat
	}
	if s.Telemetry.LogOutput != "" {
		cfg.Logging.Output = s.Telemetry.LogOutput
	}
	if s.Telemetry.MetricsListenAddress != "" {
		cfg.Metrics.ListenAddress = s.Telemetry.MetricsListenAddress
	}
	if s.Telemetry.TracingExporter != "" {
		cfg.Tracing.Exporter = s.Telemetry.TracingExporter
	}
	if s.Telemetry.TracingEndpoint != "" {
		cfg.Tracing.Endpoint = s.Telemetry.TracingEndpoint
	}

	return cfg
}
