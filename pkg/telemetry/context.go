package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openrestyle/openrestyle/pkg/engine"
)

// Telemetry provides a unified telemetry interface combining logging, tracing, metrics, and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	// Initialize tracer
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	// Initialize metrics
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	// Initialize event publisher
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	// Shutdown in reverse order of initialization
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}

	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}

	// Metrics server is not explicitly shut down here as it may need to continue
	// serving metrics until the very end of the application lifecycle

	return nil
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// Context Helpers for common instrumentation patterns

// InstrumentedContext creates a context with telemetry, logger fields, and a trace span.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartInstrumented begins an instrumented operation with logging, tracing, and timing.
func StartInstrumented(ctx context.Context, name string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	// Start trace span
	spanCtx, span := tel.Tracer.StartSpan(ctx, name, attrs...)

	// Create logger with operation field
	logger := tel.Logger.WithField("operation", name)

	// Add trace context to logger if available
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// WithOperationContext creates a context enriched with replacement-operation telemetry.
func WithOperationContext(ctx context.Context, operationID, documentID, kind string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	// Start operation span
	spanCtx, span := tel.Tracer.StartOperationSpan(ctx, operationID, documentID, kind)

	// Create operation-specific logger
	logger := tel.Logger.
		WithOperationID(operationID).
		WithDocumentID(documentID).
		WithField("kind", kind)
	spanCtx = logger.WithContext(spanCtx)

	// Record operation started metric
	tel.Metrics.RecordOperationStarted(kind)

	// Store the span and timer in context for later retrieval
	spanCtx = context.WithValue(spanCtx, operationSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, operationTimerKey{}, NewTimer())

	return spanCtx
}

// operationSpanKey is the context key for operation spans.
type operationSpanKey struct{}

// operationTimerKey is the context key for operation timers.
type operationTimerKey struct{}

// EndOperationContext completes the operation context, recording metrics.
func EndOperationContext(ctx context.Context, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	// Get the operation span from context
	if span, ok := ctx.Value(operationSpanKey{}).(trace.Span); ok {
		span.SetAttributes(AttrOperationState.String(status))
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	// Get the timer from context
	var duration time.Duration
	if timer, ok := ctx.Value(operationTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	tel.Metrics.RecordOperationCompleted(status, duration)

	if err != nil {
		tel.Metrics.RecordError(string(engine.KindOf(err)))
	}
}

// MetricsRecorder returns a measurement sink for the replacement engine
// backed by this telemetry's Prometheus collectors. Install it on the
// controller to feed batch, element, retry, and staleness metrics.
func (t *Telemetry) MetricsRecorder() engine.MetricsRecorder {
	return &metricsBridge{metrics: t.Metrics}
}

// metricsBridge adapts engine measurement callbacks onto the Prometheus
// collectors.
type metricsBridge struct {
	metrics *Metrics
}

func (b *metricsBridge) RecordBatch(size, failures int, duration time.Duration) {
	b.metrics.SetBatchSize(size)
	outcome := "clean"
	if failures > 0 {
		outcome = "failed"
	}
	b.metrics.RecordBatchDuration(outcome, duration)
}

func (b *metricsBridge) RecordElementOutcomes(updated, failed int) {
	b.metrics.RecordElementMutations("updated", updated)
	b.metrics.RecordElementMutations("failed", failed)
}

func (b *metricsBridge) RecordRetryAttempt() {
	b.metrics.RecordRetryAttempt()
}

func (b *metricsBridge) RecordStaleSignal(documentID string) {
	b.metrics.RecordStaleSignal(documentID)
}

// RecordCheckpoint records checkpoint creation with tracing and timing.
func RecordCheckpoint(ctx context.Context, operationID, documentID string, fn func(ctx context.Context) error) error {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return fn(ctx)
	}

	spanCtx, span := tel.Tracer.StartCheckpointSpan(ctx, operationID, documentID)
	defer span.End()

	err := fn(spanCtx)
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}

	return err
}
