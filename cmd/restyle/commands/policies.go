package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openrestyle/openrestyle/pkg/policy"
	"github.com/openrestyle/openrestyle/pkg/telemetry"
)

func newPoliciesCommand() *cobra.Command {
	var policyPaths []string

	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List loaded policies",
		Long: `List the built-in policies and any custom policies loaded from
files or directories. These are the policies the gate evaluates before
any replacement mutates the document.`,
		Example: `  # Built-in policies
  restyle policies

  # Include custom policies
  restyle policies --policy ./policies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := telemetry.DefaultConfig()
			cfg.Logging.Output = "stderr"
			if verbose {
				cfg.Logging.Level = "debug"
			}
			logger, err := telemetry.NewLogger(cfg.Logging)
			if err != nil {
				return err
			}

			policyEngine, err := policy.NewEngine(logger.Zerolog())
			if err != nil {
				return fmt.Errorf("failed to create policy engine: %w", err)
			}
			if len(policyPaths) > 0 {
				if err := policyEngine.LoadPolicies(ctx, policyPaths); err != nil {
					return err
				}
			}

			policies := policyEngine.ListPolicies()
			sort.Slice(policies, func(i, j int) bool {
				return policies[i].Name < policies[j].Name
			})

			if jsonOutput {
				return printJSON(policies)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSEVERITY\tENABLED\tDESCRIPTION")
			for _, p := range policies {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.Name, p.Severity, p.Enabled, p.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "policy file or directory (repeatable)")

	return cmd
}
