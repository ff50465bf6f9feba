package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Controller is the lifecycle state machine for replacement operations. It
// validates the request, obtains the safety checkpoint, hands off to the
// batch scheduler and settles into a terminal state. A controller owns at
// most one active operation; starting a second while one is in flight is
// rejected.
type Controller struct {
	checkpoints CheckpointProvider
	applier     MutationApplier
	events      EventPublisher
	gate        PolicyGate
	store       OperationStore
	metrics     MetricsRecorder
	logger      zerolog.Logger

	retry RetryPolicy

	mu    sync.Mutex
	state OperationState
	op    *ReplacementOperation
}

// NewController creates a controller around the external collaborators. The
// policy gate and operation store are optional and set separately.
func NewController(
	checkpoints CheckpointProvider,
	applier MutationApplier,
	events EventPublisher,
	logger zerolog.Logger,
) *Controller {
	return &Controller{
		checkpoints: checkpoints,
		applier:     applier,
		events:      events,
		logger:      logger.With().Str("component", "replacement-controller").Logger(),
		retry:       DefaultRetryPolicy(),
		state:       StateIdle,
	}
}

// SetPolicyGate installs an optional policy gate evaluated during validation.
func (c *Controller) SetPolicyGate(gate PolicyGate) {
	c.gate = gate
}

// SetOperationStore installs an optional persistence sink for operation
// records. Persistence failures are logged, never fatal.
func (c *Controller) SetOperationStore(store OperationStore) {
	c.store = store
}

// SetRetryPolicy overrides the per-element retry policy.
func (c *Controller) SetRetryPolicy(policy RetryPolicy) {
	c.retry = policy
}

// SetMetricsRecorder installs an optional measurement sink for batch and
// element outcomes, retries, and staleness signals.
func (c *Controller) SetMetricsRecorder(metrics MetricsRecorder) {
	c.metrics = metrics
}

// State returns the current lifecycle state.
func (c *Controller) State() OperationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Operation returns a copy of the current operation record, or nil when the
// controller is idle.
func (c *Controller) Operation() *ReplacementOperation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.op == nil {
		return nil
	}
	snapshot := *c.op
	return &snapshot
}

// Acknowledge observes a terminal state and returns the controller to idle,
// allowing a new operation to start. Calling it in a non-terminal state is
// an invalid transition.
func (c *Controller) Acknowledge() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transitionLocked(StateIdle); err != nil {
		return err
	}
	c.op = nil
	return nil
}

// Execute drives one replacement operation from validation to a terminal
// state. On success or partial failure it returns the terminal result; on
// validation, checkpoint, policy or catastrophic failure it returns an error
// whose kind identifies the failed stage. The caller must Acknowledge the
// terminal state before starting another operation.
//
// Cancellation is honored only while validating: once the checkpoint exists
// the operation is always driven to a terminal outcome rather than left
// half-applied with no accounting.
func (c *Controller) Execute(ctx context.Context, req *ReplacementRequest) (*ReplacementResult, error) {
	op, err := c.begin(req)
	if err != nil {
		return nil, err
	}

	c.emit(ctx, EventTypeOperationStarted, fmt.Sprintf("Replacing %s %s with %s across %d elements",
		op.Kind, op.SourceID, op.TargetID, len(op.Elements)),
		map[string]interface{}{
			"operationType": string(op.Kind),
			"state":         string(StateValidating),
			"sourceId":      op.SourceID,
			"targetId":      op.TargetID,
			"affectedCount": len(op.Elements),
		})

	if err := c.validate(ctx, req); err != nil {
		return nil, c.fail(ctx, err)
	}

	if c.gate != nil {
		if err := c.gate.Allow(ctx, req); err != nil {
			denied := NewPermanentError("replacement denied by policy", err).
				WithKind(ErrorKindPermission).
				WithOperation(op.ID)
			return nil, c.fail(ctx, denied)
		}
	}

	// Pre-checkpoint cancellation leaves no trace: nothing was touched and
	// nothing will be.
	if ctx.Err() != nil {
		c.mu.Lock()
		_ = c.transitionLocked(StateIdle)
		c.op = nil
		c.mu.Unlock()
		return nil, ctx.Err()
	}

	checkpoint, err := c.createCheckpoint(ctx, op, req.CheckpointTitle)
	if err != nil {
		return nil, c.fail(ctx, err)
	}

	// The checkpoint exists: from here the operation runs to a terminal
	// outcome even if the caller's context is cancelled.
	procCtx := context.WithoutCancel(ctx)

	state, procErr := c.process(procCtx, op)
	if procErr != nil {
		catastrophic := NewPermanentError("batch processing failed", procErr).
			WithKind(ErrorKindProcessing).
			WithOperation(op.ID)
		return nil, c.fail(procCtx, catastrophic)
	}

	return c.settle(procCtx, op, state, checkpoint)
}

// MarkStale records that the underlying document changed while an operation
// is in flight. The affected-element list stays immutable and processing
// continues; elements that became unavailable fail their mutation attempts
// and are ledgered. The signal is surfaced as a warning event.
func (c *Controller) MarkStale(ctx context.Context, reason string) {
	c.mu.Lock()
	if c.op == nil || !c.state.IsActive() {
		c.mu.Unlock()
		return
	}
	c.op.Stale = true
	documentID := c.op.DocumentID
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordStaleSignal(documentID)
	}
	c.emit(ctx, EventTypeDocumentStale,
		fmt.Sprintf("Document changed during replacement: %s", reason), nil)
}

// begin admits a new operation and moves the machine into validating.
func (c *Controller) begin(req *ReplacementRequest) (*ReplacementOperation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		if c.state.IsActive() {
			return nil, ErrOperationActive
		}
		return nil, fmt.Errorf("previous operation not acknowledged (state %s): %w",
			c.state, ErrInvalidTransition)
	}
	if err := c.transitionLocked(StateValidating); err != nil {
		return nil, err
	}

	elements := make([]ElementRef, len(req.Elements))
	copy(elements, req.Elements)

	id := req.OperationID
	if id == "" {
		id = uuid.New().String()
	}

	c.op = &ReplacementOperation{
		ID:         id,
		Kind:       req.Kind,
		DocumentID: req.DocumentID,
		SourceID:   req.SourceID,
		TargetID:   req.TargetID,
		Elements:   elements,
		State:      StateValidating,
		StartedAt:  time.Now(),
	}
	return c.op, nil
}

// validate confirms the affected-element list is non-empty and duplicate
// free, and that both assignment identifiers resolve and are distinct.
// Failures carry kind validation; no checkpoint is ever attempted.
func (c *Controller) validate(ctx context.Context, req *ReplacementRequest) error {
	validationErr := func(msg string, err error) error {
		return NewPermanentError(msg, err).
			WithKind(ErrorKindValidation).
			WithOperation(c.op.ID)
	}

	if err := req.Kind.Validate(); err != nil {
		return validationErr("invalid operation kind", err)
	}
	if len(req.Elements) == 0 {
		return validationErr("affected-element list is empty", nil)
	}
	if req.SourceID == "" || req.TargetID == "" {
		return validationErr("source and target assignments are required", nil)
	}
	if req.SourceID == req.TargetID {
		return validationErr("source and target assignments are identical", nil)
	}

	seen := make(map[string]struct{}, len(req.Elements))
	for _, el := range req.Elements {
		if _, dup := seen[el.ID]; dup {
			return validationErr(fmt.Sprintf("duplicate element %s in affected list", el.ID), nil)
		}
		seen[el.ID] = struct{}{}
	}

	for _, id := range []string{req.SourceID, req.TargetID} {
		ok, err := c.applier.ResolveAssignment(ctx, req.DocumentID, req.Kind, id)
		if err != nil {
			return validationErr(fmt.Sprintf("could not resolve assignment %s", id), err)
		}
		if !ok {
			return validationErr(fmt.Sprintf("assignment %s does not resolve", id), nil)
		}
	}

	return nil
}

// createCheckpoint obtains the safety snapshot, exactly once, strictly
// before the first mutation attempt.
func (c *Controller) createCheckpoint(ctx context.Context, op *ReplacementOperation, title string) (*Checkpoint, error) {
	c.mu.Lock()
	if err := c.transitionLocked(StateCreatingCheckpoint); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	if title == "" {
		title = op.checkpointTitle()
	}
	checkpoint, err := c.checkpoints.CreateCheckpoint(ctx, op.DocumentID, op.ID, title)
	if err != nil {
		return nil, NewPermanentError("checkpoint creation failed, no changes were made to the document", err).
			WithKind(ErrorKindCheckpoint).
			WithOperation(op.ID)
	}

	c.mu.Lock()
	op.Checkpoint = checkpoint
	c.mu.Unlock()
	c.persist(ctx)

	c.emit(ctx, EventTypeCheckpointCreated,
		fmt.Sprintf("Checkpoint %q created", checkpoint.Title),
		map[string]interface{}{
			"title":     checkpoint.Title,
			"timestamp": checkpoint.Timestamp,
		})
	return checkpoint, nil
}

// process hands the element sequence to the batch scheduler and relays
// batch-boundary progress into the event stream.
func (c *Controller) process(ctx context.Context, op *ReplacementOperation) (*BatchState, error) {
	c.mu.Lock()
	if err := c.transitionLocked(StateProcessing); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	mutate := func(ctx context.Context, element ElementRef) error {
		return c.applier.ApplyReplacement(ctx, op.DocumentID, op.Kind, element.ID, op.SourceID, op.TargetID)
	}

	ledger := NewFailureLedger()
	scheduler := NewBatchScheduler(mutate, c.retry, ledger, c.logger)
	scheduler.SetMetrics(c.metrics)

	return scheduler.Run(ctx, op.Elements, func(progress Progress) {
		c.emit(ctx, EventTypeProgress,
			fmt.Sprintf("Processed %d of %d elements", progress.Processed, len(op.Elements)),
			map[string]interface{}{
				"state":            string(StateProcessing),
				"progress":         progress.Percent,
				"currentBatch":     progress.BatchIndex,
				"totalBatches":     progress.TotalBatches,
				"currentBatchSize": progress.BatchSize,
				"processed":        progress.Processed,
				"failed":           progress.Failed,
			})
		c.persist(ctx)
	})
}

// settle computes the terminal result and moves the machine to complete or
// error. Partial failure completes with warnings; total failure is an error.
func (c *Controller) settle(ctx context.Context, op *ReplacementOperation, state *BatchState, checkpoint *Checkpoint) (*ReplacementResult, error) {
	completedAt := time.Now()
	result := BuildResult(state.Total, state.Failures, checkpoint, completedAt.Sub(op.StartedAt))

	if result.UpdatedCount == 0 && result.FailedCount == state.Total && state.Total > 0 {
		err := NewPermanentError(
			fmt.Sprintf("all %d elements failed to update", state.Total), nil).
			WithKind(ErrorKindProcessing).
			WithOperation(op.ID)
		return result, c.finishError(ctx, op, result, completedAt, err)
	}

	c.mu.Lock()
	if err := c.transitionLocked(StateComplete); err != nil {
		c.mu.Unlock()
		return result, err
	}
	op.State = StateComplete
	op.CompletedAt = &completedAt
	op.Result = result
	c.mu.Unlock()
	c.persist(ctx)

	data := map[string]interface{}{
		"operationType": string(op.Kind),
		"updatedCount":  result.UpdatedCount,
		"durationMs":    result.Duration.Milliseconds(),
		"hasWarnings":   result.HasWarnings,
	}
	if len(result.FailedElements) > 0 {
		data["failedElements"] = result.FailedElements
	}
	message := fmt.Sprintf("Replacement complete: %d updated", result.UpdatedCount)
	if result.HasWarnings {
		message = fmt.Sprintf("Replacement completed with warnings: %d updated, %d failed",
			result.UpdatedCount, result.FailedCount)
	}
	c.emit(ctx, EventTypeOperationComplete, message, data)

	return result, nil
}

// fail moves the machine to error and emits the operation-error protocol
// message. The existing checkpoint, if any, is always named so a full
// manual rollback stays possible.
func (c *Controller) fail(ctx context.Context, cause error) error {
	c.mu.Lock()
	op := c.op
	if terr := c.transitionLocked(StateError); terr != nil {
		c.mu.Unlock()
		return terr
	}
	completedAt := time.Now()
	if op != nil {
		op.State = StateError
		op.CompletedAt = &completedAt
	}
	c.mu.Unlock()
	c.persist(ctx)

	c.emitError(ctx, op, cause)
	return cause
}

// finishError settles a fully failed processing run: the result is recorded
// on the operation, but the terminal state is error.
func (c *Controller) finishError(ctx context.Context, op *ReplacementOperation, result *ReplacementResult, completedAt time.Time, cause error) error {
	c.mu.Lock()
	if terr := c.transitionLocked(StateError); terr != nil {
		c.mu.Unlock()
		return terr
	}
	op.State = StateError
	op.CompletedAt = &completedAt
	op.Result = result
	c.mu.Unlock()
	c.persist(ctx)

	c.emitError(ctx, op, cause)
	return cause
}

// emitError publishes the operation-error protocol message.
func (c *Controller) emitError(ctx context.Context, op *ReplacementOperation, cause error) {
	data := map[string]interface{}{
		"error":       cause.Error(),
		"errorType":   string(KindOf(cause)),
		"canRollback": false,
	}
	if op != nil {
		data["operationType"] = string(op.Kind)
		if op.Checkpoint != nil {
			data["checkpointTitle"] = op.Checkpoint.Title
			data["canRollback"] = true
		}
	}
	c.emit(ctx, EventTypeOperationError, cause.Error(), data)
}

// transitionLocked applies one lifecycle transition. Invalid requests are
// logged and rejected with the state unchanged, distinguishing a programming
// error from an expected business failure. Callers must hold c.mu.
func (c *Controller) transitionLocked(to OperationState) error {
	if !CanTransition(c.state, to) {
		c.logger.Error().
			Str("from", string(c.state)).
			Str("to", string(to)).
			Msg("Rejected invalid state transition")
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
	}
	c.logger.Debug().
		Str("from", string(c.state)).
		Str("to", string(to)).
		Msg("Operation state transition")
	c.state = to
	if c.op != nil {
		c.op.State = to
	}
	return nil
}

// emit publishes one protocol event synchronously so stream order matches
// emission order.
func (c *Controller) emit(ctx context.Context, eventType EventType, message string, data map[string]interface{}) {
	if c.events == nil {
		return
	}

	c.mu.Lock()
	var opID, docID string
	if c.op != nil {
		opID = c.op.ID
		docID = c.op.DocumentID
	}
	c.mu.Unlock()

	event := &Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now(),
		OperationID: opID,
		DocumentID:  docID,
		Message:     message,
		Level:       eventType.Severity(),
		Data:        data,
	}
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Event publish failed")
	}
}

// persist saves the current operation record when a store is configured.
func (c *Controller) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	op := c.Operation()
	if op == nil {
		return
	}
	if err := c.store.SaveOperation(ctx, op); err != nil {
		c.logger.Warn().Err(err).Str("operation_id", op.ID).Msg("Operation persist failed")
	}
}

// checkpointTitle generates the default checkpoint title.
func (op *ReplacementOperation) checkpointTitle() string {
	return fmt.Sprintf("Before replacing %s %q with %q", op.Kind, op.SourceID, op.TargetID)
}
