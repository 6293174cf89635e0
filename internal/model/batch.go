package model

import "time"

// BatchStatus is the lifecycle state of a submitted batch.
type BatchStatus string

// Batch lifecycle states. Submitted batches move to Running, then to
// exactly one terminal state.
const (
	BatchSubmitted          BatchStatus = "SUBMITTED"
	BatchRunning            BatchStatus = "RUNNING"
	BatchCompleted          BatchStatus = "COMPLETED"
	BatchPartiallyCompleted BatchStatus = "PARTIALLY_COMPLETED"
	BatchFailed             BatchStatus = "FAILED"
	BatchCancelled          BatchStatus = "CANCELLED"
)

// Terminal reports whether s is a final state.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchCompleted, BatchPartiallyCompleted, BatchFailed, BatchCancelled:
		return true
	default:
		return false
	}
}

// Batch is a caller-defined unit of rows submitted together, identified by
// a batch id supplied by the caller or derived from the row set.
type Batch struct {
	SubmittedAt time.Time
	ID          string
	Rows        []TransactionRow
}

// BatchSummary aggregates per-row outcomes for a finished (or in-flight)
// batch.
type BatchSummary struct {
	ByCategory       map[Category]int
	Processed        int // classified fresh via the oracle
	CacheHits        int
	SkippedDuplicate int
	Failed           int
	TotalRows        int
	AvgConfidence    float64
}

// BatchResult is the outcome of one pipeline run.
type BatchResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	BatchID    string
	Rows       []RowResult
	Summary    BatchSummary
	Status     BatchStatus
}
