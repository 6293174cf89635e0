// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/ledgerhound/ledgerhound/internal/model"
)

// Record is a persisted (fingerprint, classification) pair.
type Record struct {
	Fingerprint model.Fingerprint
	Result      model.ClassificationResult
}

// BatchRecord tracks a submitted batch for idempotent resubmission
// detection.
type BatchRecord struct {
	SubmittedAt time.Time
	ID          string
	Status      model.BatchStatus
	Summary     model.BatchSummary
	TotalRows   int
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Classification records. InsertClassificationIfAbsent is atomic:
	// exactly one of two concurrent inserts for the same fingerprint
	// wins, which backs the duplicate-detection guarantee.
	FindByFingerprint(ctx context.Context, fp model.Fingerprint) (*model.ClassificationResult, error)
	InsertClassificationIfAbsent(ctx context.Context, fp model.Fingerprint, result *model.ClassificationResult) (bool, error)
	// SupersedeClassification versions the current result for fp (kept
	// retrievable) and installs the replacement.
	SupersedeClassification(ctx context.Context, fp model.Fingerprint, result *model.ClassificationResult) error
	ListClassificationVersions(ctx context.Context, fp model.Fingerprint) ([]model.ClassificationResult, error)
	ListByCategory(ctx context.Context, category model.Category) ([]Record, error)
	ListByVendor(ctx context.Context, vendorID int64) ([]Record, error)

	// Oracle result cache. Kept separate from classification records so a
	// judgment obtained before a crash (or a batch deadline) still
	// short-circuits the next oracle call even though no record was
	// persisted.
	GetCachedResult(ctx context.Context, fp model.Fingerprint) (*model.ClassificationResult, error)
	PutCachedResultIfAbsent(ctx context.Context, fp model.Fingerprint, result *model.ClassificationResult) (bool, error)
	ReplaceCachedResult(ctx context.Context, fp model.Fingerprint, result *model.ClassificationResult) error

	// Vendor operations.
	GetVendor(ctx context.Context, id int64) (*model.Vendor, error)
	GetAllVendors(ctx context.Context) ([]model.Vendor, error)
	CreateVendor(ctx context.Context, vendor *model.Vendor) (int64, error)
	// AddVendorAlias fails with common.RegistryConflict when the alias
	// was concurrently claimed by a different vendor.
	AddVendorAlias(ctx context.Context, vendorID int64, alias string) error
	IncrementVendorUseCount(ctx context.Context, vendorID int64) error

	// Batch bookkeeping.
	InsertBatchIfAbsent(ctx context.Context, batchID string, totalRows int) (bool, error)
	UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus, summary model.BatchSummary) error
	GetBatch(ctx context.Context, batchID string) (*BatchRecord, error)

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// Oracle is the external classification service contract. Implementations
// handle retry, rate limiting, and per-call timeouts internally; callers see
// a synchronous request/response.
type Oracle interface {
	Classify(ctx context.Context, description string, amount float64, currency string) (OracleResponse, error)
}

// OracleResponse is the validated, coerced oracle result. Category is
// guaranteed to be a member of the fixed set and Confidence lies in [0,1].
type OracleResponse struct {
	Category   model.Category
	Rationale  string
	Confidence float64
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
