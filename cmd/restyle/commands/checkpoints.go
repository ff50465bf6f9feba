package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newCheckpointsCommand() *cobra.Command {
	var documentID string

	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List checkpoints for a document",
		Long: `List the pre-mutation checkpoints of a document, newest first.

Every replacement creates exactly one checkpoint before its first
mutation. The checkpoint title is what a manual rollback restores to.`,
		Example: `  # List checkpoints
  restyle checkpoints --document doc-1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			checkpoints, err := app.store.ListCheckpointsByDocument(ctx, documentID)
			if err != nil {
				return fmt.Errorf("failed to list checkpoints for %s: %w", documentID, err)
			}

			if jsonOutput {
				return printJSON(checkpoints)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TITLE\tOPERATION\tENTRIES\tCREATED")
			for _, checkpoint := range checkpoints {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					checkpoint.Title, checkpoint.OperationID, checkpoint.EntryCount,
					checkpoint.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&documentID, "document", "d", "", "document to inspect")
	cmd.MarkFlagRequired("document")

	return cmd
}
