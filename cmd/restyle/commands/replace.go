package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openrestyle/openrestyle/pkg/config"
	"github.com/openrestyle/openrestyle/pkg/document"
	"github.com/openrestyle/openrestyle/pkg/engine"
	"github.com/openrestyle/openrestyle/pkg/policy"
	"github.com/openrestyle/openrestyle/pkg/telemetry"
)

func newReplaceCommand() *cobra.Command {
	var (
		jobFiles    []string
		documentID  string
		kindName    string
		sourceID    string
		targetID    string
		title       string
		operator    string
		maxAffected int
		policyPaths []string
	)

	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Run a replacement operation",
		Long: `Run one or more bulk replacement operations.

Jobs come from CUE job files (--job) or from the flags below. Each job:
  - Audits the affected-element list for the source assignment
  - Evaluates the policy gate
  - Creates a checkpoint before the first mutation
  - Processes elements in adaptive batches with per-element retries

Partial failure completes with warnings and a failure ledger; the
checkpoint title is always reported so a manual rollback stays possible.`,
		Example: `  # Replace from flags
  restyle replace --document doc-1 --kind style --source heading-2 --target heading-3

  # Run jobs declared in CUE
  restyle replace --job migration.cue

  # Cap the affected-element count
  restyle replace --job migration.cue --max-affected 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			jobs, err := collectJobs(ctx, jobFiles, documentID, kindName, sourceID, targetID, title, operator)
			if err != nil {
				return err
			}

			ctx = app.tel.WithContext(ctx)
			logger := app.tel.Logger.Zerolog()

			// Engine wiring: store-backed ports behind the controller.
			checkpoints := document.NewStoreCheckpointProvider(app.store, logger)
			applier := document.NewStoreApplier(app.store, logger)
			recorder := document.NewOperationRecorder(app.store, logger)
			auditor := document.NewAuditor(app.store)

			controller := engine.NewController(checkpoints, applier, app.tel.Events, logger)
			controller.SetOperationStore(recorder)
			controller.SetRetryPolicy(app.settings.RetryPolicy())
			controller.SetMetricsRecorder(app.tel.MetricsRecorder())

			policyEngine, err := policy.NewEngine(logger)
			if err != nil {
				return fmt.Errorf("failed to create policy engine: %w", err)
			}
			if len(policyPaths) > 0 {
				if err := policyEngine.LoadPolicies(ctx, policyPaths); err != nil {
					return err
				}
				if app.settings.Watcher.Enabled {
					// Hot-reload edited policy files between jobs.
					if err := policyEngine.WatchPolicies(ctx, policyPaths); err != nil {
						logger.Warn().Err(err).Msg("Policy hot reload unavailable")
					}
				}
			}
			gate := policy.NewGate(policyEngine, app.store, logger)
			gate.MaxAffected = maxAffected
			controller.SetPolicyGate(gate)

			if app.settings.Watcher.Enabled {
				watcher, err := startStalenessWatcher(ctx, app, controller, jobs)
				if err != nil {
					return err
				}
				defer watcher.Close()
			}

			// Relay the protocol stream to the terminal and the event log.
			app.tel.Events.Subscribe(printEvent, nil)
			app.tel.Events.Subscribe(document.EventSink(app.store, logger), nil)

			if err := app.tel.StartMetricsServer(); err != nil {
				logger.Warn().Err(err).Msg("Metrics server failed to start")
			}

			for _, job := range jobs {
				if err := runJob(ctx, controller, auditor, job); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&jobFiles, "job", "j", nil, "CUE job file or directory (repeatable)")
	cmd.Flags().StringVarP(&documentID, "document", "d", "", "document to edit")
	cmd.Flags().StringVarP(&kindName, "kind", "k", "style", "assignment kind (style or token)")
	cmd.Flags().StringVar(&sourceID, "source", "", "assignment being replaced")
	cmd.Flags().StringVar(&targetID, "target", "", "assignment that replaces it")
	cmd.Flags().StringVar(&title, "title", "", "checkpoint title override")
	cmd.Flags().StringVar(&operator, "operator", "", "operator name recorded on the operation")
	cmd.Flags().IntVar(&maxAffected, "max-affected", 0, "lower the affected-element policy cap")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "extra policy file or directory (repeatable)")

	return cmd
}

// collectJobs resolves the jobs to run, from CUE files or from flags.
func collectJobs(ctx context.Context, jobFiles []string, documentID, kindName, sourceID, targetID, title, operator string) ([]config.JobConfig, error) {
	if len(jobFiles) > 0 {
		parser := config.NewCUEParser()
		jobs, err := parser.LoadJobs(ctx, jobFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to load jobs: %w", err)
		}
		return jobs, nil
	}

	if documentID == "" || sourceID == "" || targetID == "" {
		return nil, fmt.Errorf("either --job or all of --document, --source and --target are required")
	}
	if _, err := parseKind(kindName); err != nil {
		return nil, err
	}

	return []config.JobConfig{{
		Document:        documentID,
		Kind:            kindName,
		Source:          sourceID,
		Target:          targetID,
		CheckpointTitle: title,
		Operator:        operator,
	}}, nil
}

// runJob audits the affected-element list, executes the replacement, and
// reports the terminal result.
func runJob(ctx context.Context, controller *engine.Controller, auditor *document.Auditor, job config.JobConfig) error {
	req := job.ToRequest()
	req.OperationID = uuid.New().String()

	elements, err := auditor.AffectedElements(ctx, req.DocumentID, req.Kind, req.SourceID)
	if err != nil {
		return err
	}
	req.Elements = elements

	// One operation span per job; the controller reuses the minted ID so
	// spans, events and stored records correlate.
	opCtx := telemetry.WithOperationContext(ctx, req.OperationID, req.DocumentID, string(req.Kind))
	result, err := controller.Execute(opCtx, &req)
	status := "complete"
	if err != nil {
		status = "error"
	}
	telemetry.EndOperationContext(opCtx, status, err)

	ackErr := controller.Acknowledge()
	if err != nil {
		return fmt.Errorf("replacement of %s in %s failed: %w", req.SourceID, req.DocumentID, err)
	}
	if ackErr != nil {
		return ackErr
	}

	if jsonOutput {
		return printJSON(result)
	}

	fmt.Printf("Replaced %s with %s in %s: %d updated, %d failed (%s)\n",
		req.SourceID, req.TargetID, req.DocumentID,
		result.UpdatedCount, result.FailedCount, result.Duration.Round(time.Millisecond))
	if result.CheckpointTitle != "" {
		fmt.Printf("Checkpoint: %s\n", result.CheckpointTitle)
	}
	for _, failed := range result.FailedElements {
		fmt.Printf("  failed: %s (%s) after %d attempts: %s\n",
			failed.ElementID, failed.ElementName, failed.Attempts, failed.Reason)
	}

	return nil
}

// startStalenessWatcher watches the source files of every document named by
// the jobs and flags in-flight operations when one changes on disk.
func startStalenessWatcher(ctx context.Context, app *app, controller *engine.Controller, jobs []config.JobConfig) (*document.StalenessWatcher, error) {
	logger := app.tel.Logger.Zerolog()

	watcher, err := document.NewStalenessWatcher(func(documentID, reason string) {
		if err := app.store.SetDocumentStale(context.Background(), documentID, true); err != nil {
			logger.Warn().Err(err).Str("document_id", documentID).Msg("Failed to flag document stale")
		}
		controller.MarkStale(context.Background(), reason)
	}, logger)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, job := range jobs {
		if seen[job.Document] {
			continue
		}
		seen[job.Document] = true

		doc, err := app.store.GetDocument(ctx, job.Document)
		if err != nil || doc.SourcePath == "" {
			continue
		}
		if err := watcher.Watch(doc.SourcePath, doc.ID); err != nil {
			logger.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to watch document source")
		}
	}

	watcher.Start()
	return watcher, nil
}

// printEvent writes one protocol event to stdout.
func printEvent(event engine.Event) {
	if jsonOutput {
		if data, err := json.Marshal(event); err == nil {
			fmt.Println(string(data))
		}
		return
	}
	fmt.Printf("[%s] %s\n", event.Type, event.Message)
}
