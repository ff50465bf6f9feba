// Package telemetry provides comprehensive observability instrumentation for openrestyle.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and protocol event publishing into a unified
// system for monitoring and debugging replacement operations.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Ordered delivery of the engine's protocol events
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "openrestyle"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithOperationID("op-123").WithDocumentID("doc-456")
//	logger.Info("Starting style replacement")
//	logger.WithError(err).Error("Replacement failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into operation flow and performance:
//
//	ctx, span := tel.Tracer.StartOperationSpan(ctx, operationID, documentID, "style")
//	defer span.End()
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track engine behavior and performance:
//
//	tel.Metrics.RecordOperationStarted("style")
//	tel.Metrics.RecordOperationCompleted("complete", duration)
//	tel.Metrics.RecordElementMutation("updated")
//	tel.Metrics.SetBatchSize(50)
//	tel.Metrics.RecordError("processing")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The EventPublisher implements engine.EventPublisher and fans the protocol
// stream out to subscribers. Delivery order matches publish order; this is a
// protocol guarantee, not a best-effort property.
//
//	tel.Events.Subscribe(func(event engine.Event) {
//	    fmt.Printf("Event: %s\n", event.Type)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByOperationID, FilterByDocumentID
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Operation context
//	ctx = telemetry.WithOperationContext(ctx, operationID, documentID, "style")
//	defer telemetry.EndOperationContext(ctx, status, err)
//
//	// Checkpoint instrumentation
//	err := telemetry.RecordCheckpoint(ctx, operationID, documentID, func(ctx context.Context) error {
//	    return snapshotDocument(ctx)
//	})
//
//	// Batch and retry measurement, fed by the engine's controller
//	controller.SetMetricsRecorder(tel.MetricsRecorder())
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// This ensures buffered events are delivered and pending traces exported.
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - openrestyle_operations_started_total{kind}
//   - openrestyle_operations_completed_total{status}
//   - openrestyle_operation_duration_seconds{status}
//   - openrestyle_element_mutations_total{outcome}
//   - openrestyle_retry_attempts_total
//   - openrestyle_batch_size
//   - openrestyle_batch_duration_seconds{outcome}
//   - openrestyle_errors_by_kind_total{kind}
//   - openrestyle_stale_signals_total{document_id}
//   - openrestyle_active_operations
package telemetry
