// Package engine implements the adaptive batch replacement engine: the
// subsystem that safely swaps one design-system assignment (a named style or
// a design token) for another across tens of thousands of document elements.
//
// # Overview
//
// A replacement runs through a fixed lifecycle driven by the Controller:
//
//  1. Validating - confirm the affected-element list and assignment ids
//  2. Creating checkpoint - obtain the safety snapshot, exactly once
//  3. Processing - apply mutations batch by batch via the scheduler
//  4. Complete / Error - settle with a ReplacementResult
//
// # Core Components
//
//   - RetryWithBackoff: retries one fallible unit of work with bounded
//     attempts and increasing delays
//   - BatchRetry: fans the retry engine out over a sequence of units,
//     preserving input order and never aborting siblings
//   - BatchScheduler: partitions the affected-element list into right-sized
//     batches (floor 25, ceiling 100) and resizes on observed outcomes
//   - Controller: the lifecycle state machine
//   - FailureLedger: the append-only record of exhausted elements
//
// # Batch Sizing
//
// Batches start at the ceiling. Any batch with at least one failure collapses
// the size to the floor, limiting the blast radius and retry cost of a
// systemic problem such as a permission error. Three consecutive clean
// batches double the size back toward the ceiling. No operator tuning is
// required.
//
// # External Collaborators
//
// The engine owns no document knowledge. It consumes three narrow ports:
//
//   - CheckpointProvider: creates the pre-mutation snapshot
//   - MutationApplier: reads and writes the underlying document
//   - EventPublisher: receives the ordered protocol stream
//
// An optional PolicyGate can deny a validated request, and an optional
// OperationStore persists operation records for later inspection.
//
// # Error Classification
//
// Errors carry a retry class (transient or permanent) and an operation stage
// (validation, checkpoint, processing, permission). Validation and checkpoint
// errors abort before any mutation. A single element exhausting its retries
// is ledgered, never propagated. Catastrophic internal errors settle the
// operation to error with a reference to the existing checkpoint.
//
// # Ordering and Cancellation
//
// Batches run strictly in sequence; mutation attempts within a batch are
// dispatched concurrently and the batch boundary is a full synchronization
// point where progress is reported and the batch size re-evaluated.
// Cancellation is honored only before the checkpoint exists; afterwards the
// operation is always driven to a terminal outcome so partial success is
// fully accounted for.
package engine
