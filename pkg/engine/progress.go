package engine

// ProgressFrom derives the batch-boundary progress projection from scheduler
// state. It is a pure function of the state; nothing is stored.
func ProgressFrom(state *BatchState, batchIndex int) Progress {
	percent := 0
	if state.Total > 0 {
		// Integer division floors, matching floor(processed/total*100).
		percent = state.Processed * 100 / state.Total
	}

	remaining := state.Remaining()
	totalBatches := batchIndex
	if state.BatchSize > 0 {
		totalBatches += (remaining + state.BatchSize - 1) / state.BatchSize
	}

	return Progress{
		Percent:      percent,
		BatchIndex:   batchIndex,
		TotalBatches: totalBatches,
		BatchSize:    state.BatchSize,
		Processed:    state.Processed,
		Failed:       len(state.Failures),
	}
}
