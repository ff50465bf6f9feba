package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/openrestyle/openrestyle/pkg/config"
	"github.com/openrestyle/openrestyle/pkg/stores"
	"github.com/openrestyle/openrestyle/pkg/telemetry"
)

// app bundles the shared wiring every command needs: settings, the telemetry
// stack, and an initialized store.
type app struct {
	settings *config.Settings
	tel      *telemetry.Telemetry
	store    stores.Store
}

// newApp loads settings, brings up telemetry, and opens the store. The caller
// must Close the app when done.
func newApp(ctx context.Context) (*app, error) {
	settings := config.DefaultSettings()
	if configPath != "" {
		loaded, err := config.LoadSettings(configPath)
		if err != nil {
			return nil, err
		}
		settings = loaded
	}
	if verbose {
		settings.Telemetry.LogLevel = "debug"
	}

	tel, err := telemetry.NewTelemetry(settings.TelemetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	store, err := stores.NewSQLiteStore(settings.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	return &app{
		settings: settings,
		tel:      tel,
		store:    store,
	}, nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.tel.Logger.WithError(err).Warn("Failed to close store")
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
	}
}

// printJSON writes a value as indented JSON to stdout.
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
