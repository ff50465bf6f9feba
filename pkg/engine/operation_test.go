package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockApplier implements MutationApplier with configurable failures.
type mockApplier struct {
	mu           sync.Mutex
	failElements map[string]bool
	unresolved   map[string]bool
	applied      []string
	block        chan struct{} // when set, mutations wait until closed
}

func (m *mockApplier) ApplyReplacement(ctx context.Context, documentID string, kind OperationKind, elementID, sourceID, targetID string) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failElements[elementID] {
		return errors.New("node locked by another editor")
	}
	m.applied = append(m.applied, elementID)
	return nil
}

func (m *mockApplier) ResolveAssignment(ctx context.Context, documentID string, kind OperationKind, assignmentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unresolved[assignmentID], nil
}

func (m *mockApplier) appliedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}

// mockCheckpoints implements CheckpointProvider and counts invocations.
type mockCheckpoints struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (m *mockCheckpoints) CreateCheckpoint(ctx context.Context, documentID, operationID, title string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return nil, errors.New("version history unavailable")
	}
	return &Checkpoint{Title: title, Timestamp: time.Now()}, nil
}

func (m *mockCheckpoints) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// captureEvents implements EventPublisher, recording the ordered stream.
type captureEvents struct {
	mu     sync.Mutex
	events []*Event
}

func (c *captureEvents) Publish(ctx context.Context, event *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureEvents) types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]EventType, len(c.events))
	for i, e := range c.events {
		types[i] = e.Type
	}
	return types
}

func (c *captureEvents) last() *Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func (c *captureEvents) countType(t EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type denyGate struct{ reason string }

func (g *denyGate) Allow(ctx context.Context, req *ReplacementRequest) error {
	return errors.New(g.reason)
}

func newTestController(applier *mockApplier, checkpoints *mockCheckpoints, events *captureEvents) *Controller {
	c := NewController(checkpoints, applier, events, zerolog.Nop())
	c.SetRetryPolicy(RetryPolicy{MaxAttempts: 3, Delays: []time.Duration{time.Millisecond}})
	return c
}

func styleRequest(elements []ElementRef) *ReplacementRequest {
	return &ReplacementRequest{
		Kind:       KindStyle,
		DocumentID: "doc-1",
		SourceID:   "style/old-heading",
		TargetID:   "style/new-heading",
		Elements:   elements,
	}
}

func TestExecuteHappyPath(t *testing.T) {
	applier := &mockApplier{}
	checkpoints := &mockCheckpoints{}
	events := &captureEvents{}
	controller := newTestController(applier, checkpoints, events)

	result, err := controller.Execute(context.Background(), styleRequest(makeElements(150)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Success || result.UpdatedCount != 150 || result.FailedCount != 0 || result.HasWarnings {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.CheckpointTitle == "" {
		t.Error("result must name the checkpoint")
	}
	if checkpoints.callCount() != 1 {
		t.Errorf("checkpoint created %d times, want exactly once", checkpoints.callCount())
	}
	if applier.appliedCount() != 150 {
		t.Errorf("applied %d mutations, want 150", applier.appliedCount())
	}
	if controller.State() != StateComplete {
		t.Errorf("state = %s, want complete", controller.State())
	}

	want := []EventType{
		EventTypeOperationStarted,
		EventTypeCheckpointCreated,
		EventTypeProgress,
		EventTypeProgress,
		EventTypeOperationComplete,
	}
	got := events.types()
	if len(got) != len(want) {
		t.Fatalf("event stream %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event stream %v, want %v", got, want)
		}
	}

	if err := controller.Acknowledge(); err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if controller.State() != StateIdle {
		t.Errorf("state after acknowledge = %s, want idle", controller.State())
	}
}

func TestExecutePartialFailureCompletesWithWarnings(t *testing.T) {
	applier := &mockApplier{failElements: map[string]bool{"el-050": true}}
	checkpoints := &mockCheckpoints{}
	events := &captureEvents{}
	controller := newTestController(applier, checkpoints, events)

	result, err := controller.Execute(context.Background(), styleRequest(makeElements(120)))
	if err != nil {
		t.Fatalf("partial failure must settle to complete, got error: %v", err)
	}

	if result.UpdatedCount != 119 || result.FailedCount != 1 {
		t.Errorf("counts %d/%d, want 119/1", result.UpdatedCount, result.FailedCount)
	}
	if !result.HasWarnings || result.Success {
		t.Errorf("partial failure should warn, not fail: %+v", result)
	}
	if result.UpdatedCount+result.FailedCount != 120 {
		t.Errorf("counts must account for every affected element")
	}
	if len(result.FailedElements) != 1 || result.FailedElements[0].ElementID != "el-050" {
		t.Errorf("unexpected failure list: %+v", result.FailedElements)
	}

	last := events.last()
	if last.Type != EventTypeOperationComplete {
		t.Fatalf("final event %s, want operation-complete", last.Type)
	}
	if warn, _ := last.Data["hasWarnings"].(bool); !warn {
		t.Error("completion event should carry hasWarnings=true")
	}
	if controller.State() != StateComplete {
		t.Errorf("state = %s, want complete", controller.State())
	}
}

func TestExecuteIdenticalSourceAndTarget(t *testing.T) {
	applier := &mockApplier{}
	checkpoints := &mockCheckpoints{}
	events := &captureEvents{}
	controller := newTestController(applier, checkpoints, events)

	req := styleRequest(makeElements(5))
	req.TargetID = req.SourceID

	_, err := controller.Execute(context.Background(), req)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if KindOf(err) != ErrorKindValidation {
		t.Errorf("error kind %s, want validation", KindOf(err))
	}
	if checkpoints.callCount() != 0 {
		t.Error("no checkpoint may be attempted on validation failure")
	}
	if events.countType(EventTypeCheckpointCreated) != 0 {
		t.Error("checkpoint-created must never be emitted")
	}
	if applier.appliedCount() != 0 {
		t.Error("no mutation may be attempted")
	}
	if controller.State() != StateError {
		t.Errorf("state = %s, want error", controller.State())
	}

	last := events.last()
	if last.Type != EventTypeOperationError {
		t.Fatalf("final event %s, want operation-error", last.Type)
	}
	if last.Data["errorType"] != string(ErrorKindValidation) {
		t.Errorf("errorType %v, want validation", last.Data["errorType"])
	}
	if rollback, _ := last.Data["canRollback"].(bool); rollback {
		t.Error("nothing to roll back before a checkpoint exists")
	}
}

func TestExecuteCheckpointFailure(t *testing.T) {
	applier := &mockApplier{}
	checkpoints := &mockCheckpoints{fail: true}
	events := &captureEvents{}
	controller := newTestController(applier, checkpoints, events)

	_, err := controller.Execute(context.Background(), styleRequest(makeElements(40)))
	if err == nil {
		t.Fatal("expected checkpoint error")
	}
	if KindOf(err) != ErrorKindCheckpoint {
		t.Errorf("error kind %s, want checkpoint", KindOf(err))
	}
	if applier.appliedCount() != 0 {
		t.Error("zero mutations may be attempted when the checkpoint fails")
	}
	if !strings.Contains(err.Error(), "no changes were made") {
		t.Errorf("error %q must state the document was never touched", err)
	}
	if controller.State() != StateError {
		t.Errorf("state = %s, want error", controller.State())
	}
}

func TestExecuteValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(req *ReplacementRequest)
	}{
		{"empty elements", func(req *ReplacementRequest) { req.Elements = nil }},
		{"missing source", func(req *ReplacementRequest) { req.SourceID = "" }},
		{"invalid kind", func(req *ReplacementRequest) { req.Kind = "gradient" }},
		{"duplicate elements", func(req *ReplacementRequest) {
			req.Elements = append(req.Elements, req.Elements[0])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &mockApplier{}
			checkpoints := &mockCheckpoints{}
			controller := newTestController(applier, checkpoints, &captureEvents{})

			req := styleRequest(makeElements(4))
			tt.mutate(req)

			_, err := controller.Execute(context.Background(), req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if KindOf(err) != ErrorKindValidation {
				t.Errorf("error kind %s, want validation", KindOf(err))
			}
			if checkpoints.callCount() != 0 {
				t.Error("no checkpoint may be attempted")
			}
		})
	}
}

func TestExecuteUnresolvedAssignment(t *testing.T) {
	applier := &mockApplier{unresolved: map[string]bool{"style/new-heading": true}}
	controller := newTestController(applier, &mockCheckpoints{}, &captureEvents{})

	_, err := controller.Execute(context.Background(), styleRequest(makeElements(3)))
	if err == nil || KindOf(err) != ErrorKindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExecutePolicyDenied(t *testing.T) {
	applier := &mockApplier{}
	checkpoints := &mockCheckpoints{}
	events := &captureEvents{}
	controller := newTestController(applier, checkpoints, events)
	controller.SetPolicyGate(&denyGate{reason: "assignment is locked"})

	_, err := controller.Execute(context.Background(), styleRequest(makeElements(10)))
	if err == nil {
		t.Fatal("expected permission error")
	}
	if KindOf(err) != ErrorKindPermission {
		t.Errorf("error kind %s, want permission", KindOf(err))
	}
	if checkpoints.callCount() != 0 {
		t.Error("a denied operation must not create a checkpoint")
	}
	if last := events.last(); last.Data["errorType"] != string(ErrorKindPermission) {
		t.Errorf("errorType %v, want permission", last.Data["errorType"])
	}
}

func TestExecuteTotalFailureSettlesToError(t *testing.T) {
	failAll := make(map[string]bool)
	for _, el := range makeElements(30) {
		failAll[el.ID] = true
	}
	applier := &mockApplier{failElements: failAll}
	checkpoints := &mockCheckpoints{}
	events := &captureEvents{}
	controller := newTestController(applier, checkpoints, events)

	result, err := controller.Execute(context.Background(), styleRequest(makeElements(30)))
	if err == nil {
		t.Fatal("a fully failed operation must settle to error")
	}
	if KindOf(err) != ErrorKindProcessing {
		t.Errorf("error kind %s, want processing", KindOf(err))
	}
	if result == nil || result.FailedCount != 30 || result.UpdatedCount != 0 {
		t.Errorf("result must still account for every element: %+v", result)
	}
	if result.HasWarnings {
		t.Error("total failure is an error, not a warning")
	}
	if controller.State() != StateError {
		t.Errorf("state = %s, want error", controller.State())
	}

	last := events.last()
	if last.Type != EventTypeOperationError {
		t.Fatalf("final event %s, want operation-error", last.Type)
	}
	if title, _ := last.Data["checkpointTitle"].(string); title == "" {
		t.Error("error event must name the checkpoint for manual recovery")
	}
	if rollback, _ := last.Data["canRollback"].(bool); !rollback {
		t.Error("rollback must be possible once a checkpoint exists")
	}
}

func TestExecuteRejectsConcurrentOperation(t *testing.T) {
	block := make(chan struct{})
	applier := &mockApplier{block: block}
	controller := newTestController(applier, &mockCheckpoints{}, &captureEvents{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = controller.Execute(context.Background(), styleRequest(makeElements(10)))
	}()

	// Wait for the first operation to become active.
	deadline := time.After(2 * time.Second)
	for controller.State() == StateIdle {
		select {
		case <-deadline:
			t.Fatal("first operation never started")
		case <-time.After(time.Millisecond):
		}
	}

	_, err := controller.Execute(context.Background(), styleRequest(makeElements(5)))
	if !errors.Is(err, ErrOperationActive) {
		t.Errorf("expected ErrOperationActive, got %v", err)
	}

	close(block)
	<-done
}

func TestExecuteRequiresAcknowledgement(t *testing.T) {
	applier := &mockApplier{}
	controller := newTestController(applier, &mockCheckpoints{}, &captureEvents{})

	if _, err := controller.Execute(context.Background(), styleRequest(makeElements(5))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := controller.Execute(context.Background(), styleRequest(makeElements(5)))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("unacknowledged terminal state must reject new operations, got %v", err)
	}

	if err := controller.Acknowledge(); err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if _, err := controller.Execute(context.Background(), styleRequest(makeElements(5))); err != nil {
		t.Errorf("acknowledged controller must accept a new operation, got %v", err)
	}
}

func TestAcknowledgeFromIdleIsInvalid(t *testing.T) {
	controller := newTestController(&mockApplier{}, &mockCheckpoints{}, &captureEvents{})

	err := controller.Acknowledge()
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if controller.State() != StateIdle {
		t.Errorf("rejected transition must leave state unchanged, got %s", controller.State())
	}
}

func TestExecuteCancelledBeforeCheckpoint(t *testing.T) {
	applier := &mockApplier{}
	checkpoints := &mockCheckpoints{}
	events := &captureEvents{}
	controller := newTestController(applier, checkpoints, events)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := controller.Execute(ctx, styleRequest(makeElements(10)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if checkpoints.callCount() != 0 || applier.appliedCount() != 0 {
		t.Error("pre-checkpoint cancellation must have zero side effects")
	}
	if controller.State() != StateIdle {
		t.Errorf("state = %s, want idle after pre-checkpoint cancellation", controller.State())
	}
}

func TestMarkStaleDuringOperation(t *testing.T) {
	block := make(chan struct{})
	applier := &mockApplier{block: block}
	events := &captureEvents{}
	controller := newTestController(applier, &mockCheckpoints{}, events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = controller.Execute(context.Background(), styleRequest(makeElements(10)))
	}()

	deadline := time.After(2 * time.Second)
	for controller.State() != StateProcessing {
		select {
		case <-deadline:
			t.Fatal("operation never reached processing")
		case <-time.After(time.Millisecond):
		}
	}

	controller.MarkStale(context.Background(), "file changed on disk")
	close(block)
	<-done

	if events.countType(EventTypeDocumentStale) != 1 {
		t.Error("staleness must be surfaced as a warning event")
	}
	if op := controller.Operation(); op == nil || !op.Stale {
		t.Error("operation record must carry the stale flag")
	}
}

func TestMarkStaleRecordsSignal(t *testing.T) {
	block := make(chan struct{})
	applier := &mockApplier{block: block}
	controller := newTestController(applier, &mockCheckpoints{}, &captureEvents{})

	metrics := &recordingMetrics{}
	controller.SetMetricsRecorder(metrics)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = controller.Execute(context.Background(), styleRequest(makeElements(10)))
	}()

	deadline := time.After(2 * time.Second)
	for controller.State() != StateProcessing {
		select {
		case <-deadline:
			t.Fatal("operation never reached processing")
		case <-time.After(time.Millisecond):
		}
	}

	controller.MarkStale(context.Background(), "file changed on disk")
	close(block)
	<-done

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.staleSignals) != 1 || metrics.staleSignals[0] != "doc-1" {
		t.Errorf("recorded stale signals %v, want one for doc-1", metrics.staleSignals)
	}
}

func TestExecuteHonorsRequestOperationID(t *testing.T) {
	applier := &mockApplier{}
	events := &captureEvents{}
	controller := newTestController(applier, &mockCheckpoints{}, events)

	req := styleRequest(makeElements(3))
	req.OperationID = "op-preminted"

	if _, err := controller.Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := controller.Operation().ID; got != "op-preminted" {
		t.Errorf("operation ID %q, want the request's pre-minted ID", got)
	}
	if last := events.last(); last.OperationID != "op-preminted" {
		t.Errorf("event operation ID %q, want op-preminted", last.OperationID)
	}
}

func TestExecuteFeedsMetricsRecorder(t *testing.T) {
	applier := &mockApplier{failElements: map[string]bool{"el-002": true}}
	controller := newTestController(applier, &mockCheckpoints{}, &captureEvents{})

	metrics := &recordingMetrics{}
	controller.SetMetricsRecorder(metrics)

	result, err := controller.Execute(context.Background(), styleRequest(makeElements(5)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.HasWarnings {
		t.Fatalf("expected partial failure, got %+v", result)
	}

	if metrics.updated != 4 || metrics.failed != 1 {
		t.Errorf("recorded outcomes updated=%d failed=%d, want 4/1", metrics.updated, metrics.failed)
	}
	if len(metrics.batchSizes) != 1 || metrics.batchSizes[0] != 5 {
		t.Errorf("recorded batch sizes %v, want [5]", metrics.batchSizes)
	}
	if metrics.retries != 2 {
		t.Errorf("recorded %d retries, want 2", metrics.retries)
	}
}

func TestMarkStaleWhileIdleIsIgnored(t *testing.T) {
	events := &captureEvents{}
	controller := newTestController(&mockApplier{}, &mockCheckpoints{}, events)

	controller.MarkStale(context.Background(), "noise")
	if len(events.types()) != 0 {
		t.Error("staleness outside an operation must be ignored")
	}
}

func TestCanTransitionTable(t *testing.T) {
	valid := []struct{ from, to OperationState }{
		{StateIdle, StateValidating},
		{StateValidating, StateCreatingCheckpoint},
		{StateValidating, StateError},
		{StateValidating, StateIdle},
		{StateCreatingCheckpoint, StateProcessing},
		{StateCreatingCheckpoint, StateError},
		{StateProcessing, StateComplete},
		{StateProcessing, StateError},
		{StateComplete, StateIdle},
		{StateError, StateIdle},
	}
	for _, tt := range valid {
		if !CanTransition(tt.from, tt.to) {
			t.Errorf("transition %s -> %s should be allowed", tt.from, tt.to)
		}
	}

	invalid := []struct{ from, to OperationState }{
		{StateIdle, StateProcessing},
		{StateIdle, StateComplete},
		{StateProcessing, StateValidating},
		{StateComplete, StateProcessing},
		{StateError, StateComplete},
		{StateCreatingCheckpoint, StateIdle},
		{StateProcessing, StateIdle},
	}
	for _, tt := range invalid {
		if CanTransition(tt.from, tt.to) {
			t.Errorf("transition %s -> %s must be rejected", tt.from, tt.to)
		}
	}
}
