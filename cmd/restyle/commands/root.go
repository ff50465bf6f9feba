package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "restyle",
		Short: "OpenRestyle - Adaptive Batch Replacement Engine",
		Long: `OpenRestyle bulk-replaces style and design-token assignments across
document elements, with a checkpoint before the first mutation and
per-element retries behind an adaptive batch scheduler.

Features:
  - Read-only usage audits over the assignment catalog
  - Replacement jobs declared in CUE or passed as flags
  - Pre-mutation checkpoints for manual rollback
  - Policy enforcement (OPA/rego) before any mutation
  - Staleness detection for documents edited outside the engine`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newReplaceCommand())
	rootCmd.AddCommand(newCheckpointsCommand())
	rootCmd.AddCommand(newOperationsCommand())
	rootCmd.AddCommand(newPoliciesCommand())

	return rootCmd
}
