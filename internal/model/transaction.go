// Package model defines the core domain models used throughout the application.
package model

import "time"

// TransactionRow is a single bank-statement row as ingested. Immutable once
// created; the pipeline never mutates it.
type TransactionRow struct {
	Date        time.Time
	Description string
	Currency    string
	AccountID   string
	ExternalRef string // optional bank-supplied reference
	Amount      float64
}

// Fingerprint is the deterministic identity digest of a transaction's
// normalized immutable fields. It is both the dedup key and the cache key.
type Fingerprint string

// RowOutcome is the terminal disposition of a single row within a batch.
// Every row ends in exactly one of these.
type RowOutcome string

const (
	// OutcomeClassified means the oracle classified the row in this batch.
	OutcomeClassified RowOutcome = "CLASSIFIED"
	// OutcomeClassifiedFromCache means a prior result was reused.
	OutcomeClassifiedFromCache RowOutcome = "CLASSIFIED_FROM_CACHE"
	// OutcomeSkippedDuplicate means a record with the same fingerprint
	// already exists anywhere in storage.
	OutcomeSkippedDuplicate RowOutcome = "SKIPPED_DUPLICATE"
	// OutcomeFailed means the row could not be processed.
	OutcomeFailed RowOutcome = "FAILED"
)

// RowResult records what happened to one row.
type RowResult struct {
	Err         error
	Result      *ClassificationResult
	Fingerprint Fingerprint
	Outcome     RowOutcome
	Row         TransactionRow
	Index       int
}
