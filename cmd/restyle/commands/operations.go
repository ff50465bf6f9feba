package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newOperationsCommand() *cobra.Command {
	var (
		documentID string
		limit      int
		failures   bool
	)

	cmd := &cobra.Command{
		Use:   "operations",
		Short: "List past replacement operations",
		Long: `List the replacement operations recorded for a document, newest
first, with their terminal counts. With --failures each operation's
failure ledger is printed as well.`,
		Example: `  # Recent operations
  restyle operations --document doc-1

  # Include the failure ledgers
  restyle operations --document doc-1 --failures`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			operations, err := app.store.ListOperationsByDocument(ctx, documentID, limit, 0)
			if err != nil {
				return fmt.Errorf("failed to list operations for %s: %w", documentID, err)
			}

			if jsonOutput {
				return printJSON(operations)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSOURCE\tTARGET\tSTATUS\tUPDATED\tFAILED\tSTARTED")
			for _, op := range operations {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					op.ID, op.Kind, op.SourceID, op.TargetID, op.Status,
					op.UpdatedCount, op.FailedCount, op.StartedAt.Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if !failures {
				return nil
			}

			for _, op := range operations {
				if op.FailedCount == 0 {
					continue
				}
				ledger, err := app.store.ListOperationFailures(ctx, op.ID)
				if err != nil {
					return fmt.Errorf("failed to load ledger for %s: %w", op.ID, err)
				}
				fmt.Printf("\nFailures of %s:\n", op.ID)
				for _, failure := range ledger {
					fmt.Printf("  %s (%s) after %d attempts: %s\n",
						failure.ElementID, failure.ElementName, failure.Attempts, failure.Reason)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&documentID, "document", "d", "", "document to inspect")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum operations to list")
	cmd.Flags().BoolVar(&failures, "failures", false, "print each operation's failure ledger")
	cmd.MarkFlagRequired("document")

	return cmd
}
