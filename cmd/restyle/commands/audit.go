package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openrestyle/openrestyle/pkg/document"
	"github.com/openrestyle/openrestyle/pkg/engine"
)

func newAuditCommand() *cobra.Command {
	var (
		documentID string
		kindName   string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report assignment usage for a document",
		Long: `Report every catalog assignment of a document with the number of
elements carrying it, including unused assignments.

The audit is read-only and runs entirely against the store. Its counts
are the affected-element lists a replacement would operate on.`,
		Example: `  # Audit style usage
  restyle audit --document doc-1

  # Audit token usage as JSON
  restyle audit --document doc-1 --kind token --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kind, err := parseKind(kindName)
			if err != nil {
				return err
			}

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			auditor := document.NewAuditor(app.store)
			usages, err := auditor.Usage(ctx, documentID, kind)
			if err != nil {
				return fmt.Errorf("failed to audit %s: %w", documentID, err)
			}

			if jsonOutput {
				return printJSON(usages)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tLOCKED\tELEMENTS")
			for _, usage := range usages {
				locked := ""
				if usage.Assignment.Locked {
					locked = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
					usage.Assignment.ID, usage.Assignment.Name, locked, usage.Count)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&documentID, "document", "d", "", "document to audit")
	cmd.Flags().StringVarP(&kindName, "kind", "k", "style", "assignment kind (style or token)")
	cmd.MarkFlagRequired("document")

	return cmd
}

// parseKind maps the --kind flag onto the engine's operation kind.
func parseKind(name string) (engine.OperationKind, error) {
	switch name {
	case "style":
		return engine.KindStyle, nil
	case "token":
		return engine.KindToken, nil
	default:
		return "", fmt.Errorf("unknown kind %q, expected style or token", name)
	}
}
