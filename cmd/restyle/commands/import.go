package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openrestyle/openrestyle/pkg/document"
)

func newImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <snapshot>...",
		Short: "Import document snapshots into the store",
		Long: `Import one or more document export files into the store.

A snapshot carries the document's style and token catalogs and every
element with its assignments. Re-importing a document updates existing
rows in place.`,
		Example: `  # Import a single document export
  restyle import landing-page.json

  # Import several exports at once
  restyle import exports/*.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			for _, path := range args {
				doc, err := document.ImportSnapshot(ctx, app.store, path)
				if err != nil {
					return fmt.Errorf("failed to import %s: %w", path, err)
				}

				if jsonOutput {
					if err := printJSON(doc); err != nil {
						return err
					}
					continue
				}
				fmt.Printf("Imported document %s (%s) from %s\n", doc.ID, doc.Name, path)
			}

			return nil
		},
	}

	return cmd
}
