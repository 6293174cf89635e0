// Package pipeline runs submitted batches through the per-row classification
// steps: fingerprint, duplicate check, cache lookup, oracle call, vendor
// resolution, persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/fingerprint"
	"github.com/ledgerhound/ledgerhound/internal/model"
	"github.com/ledgerhound/ledgerhound/internal/service"
	"github.com/ledgerhound/ledgerhound/internal/vendor"
)

// Resolver resolves a description text to a vendor identity.
type Resolver interface {
	Resolve(ctx context.Context, descriptionText string) (vendor.Resolution, error)
}

// ResultCache short-circuits oracle calls for fingerprints judged before.
type ResultCache interface {
	Get(ctx context.Context, fp model.Fingerprint) (*model.ClassificationResult, error)
	Put(ctx context.Context, fp model.Fingerprint, result *model.ClassificationResult) (bool, error)
}

// ProgressFunc receives (rowsDone, totalRows) as rows finish. Called from the
// collector goroutine only, so implementations need no locking.
type ProgressFunc func(done, total int)

// Config holds pipeline tuning knobs.
type Config struct {
	// Workers bounds row-level parallelism. The bound exists mainly to
	// respect the oracle's rate limits.
	Workers    int
	OnProgress ProgressFunc
}

// DefaultWorkers is used when Config.Workers is unset.
const DefaultWorkers = 4

// Pipeline processes batches of transaction rows. Rows are independent; no
// row's outcome depends on another's.
type Pipeline struct {
	storage    service.Storage
	oracle     service.Oracle
	registry   Resolver
	cache      ResultCache
	onProgress ProgressFunc
	workers    int
}

// New creates a pipeline over the given collaborators.
func New(storage service.Storage, oracle service.Oracle, registry Resolver, cache ResultCache, cfg Config) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pipeline{
		storage:    storage,
		oracle:     oracle,
		registry:   registry,
		cache:      cache,
		onProgress: cfg.OnProgress,
		workers:    workers,
	}
}

// Run processes every row of the batch and aggregates the outcomes. Rows
// complete in no particular order. On cancellation or deadline expiry the
// partial result is returned together with the context error; already
// completed rows are retained. A storage failure that would affect every
// row aborts the batch instead of failing rows one by one.
func (p *Pipeline) Run(ctx context.Context, batch model.Batch) (*model.BatchResult, error) {
	result := &model.BatchResult{
		BatchID:   batch.ID,
		StartedAt: time.Now().UTC(),
	}

	total := len(batch.Rows)
	result.Summary.TotalRows = total
	result.Summary.ByCategory = make(map[model.Category]int)

	if total == 0 {
		result.Status = model.BatchCompleted
		result.FinishedAt = time.Now().UTC()
		return result, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// First storage-level failure aborts the whole batch.
	var (
		systemicOnce sync.Once
		systemicErr  error
	)
	failFast := func(err error) {
		systemicOnce.Do(func() {
			systemicErr = err
			slog.Error("aborting batch on storage failure", "batch_id", batch.ID, "error", err)
			cancel()
		})
	}

	workChan := make(chan int, total)
	for i := range batch.Rows {
		workChan <- i
	}
	close(workChan)

	resultsChan := make(chan model.RowResult, total)

	var wg sync.WaitGroup
	wg.Add(p.workers)
	for w := 0; w < p.workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range workChan {
				select {
				case <-runCtx.Done():
					return
				default:
				}
				resultsChan <- p.processRow(runCtx, batch.Rows[idx], idx, failFast)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var confidenceSum float64
	for row := range resultsChan {
		result.Rows = append(result.Rows, row)

		switch row.Outcome {
		case model.OutcomeClassified:
			result.Summary.Processed++
		case model.OutcomeClassifiedFromCache:
			result.Summary.CacheHits++
		case model.OutcomeSkippedDuplicate:
			result.Summary.SkippedDuplicate++
		case model.OutcomeFailed:
			result.Summary.Failed++
		}
		if row.Outcome == model.OutcomeClassified || row.Outcome == model.OutcomeClassifiedFromCache {
			result.Summary.ByCategory[row.Result.Category]++
			confidenceSum += row.Result.Confidence
		}

		if p.onProgress != nil {
			p.onProgress(len(result.Rows), total)
		}
	}

	if classified := result.Summary.Processed + result.Summary.CacheHits; classified > 0 {
		result.Summary.AvgConfidence = confidenceSum / float64(classified)
	}

	sort.Slice(result.Rows, func(i, j int) bool { return result.Rows[i].Index < result.Rows[j].Index })

	result.Status = batchStatus(result.Summary, len(result.Rows))
	result.FinishedAt = time.Now().UTC()

	if systemicErr != nil {
		result.Status = model.BatchFailed
		return result, systemicErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// processRow runs one row through the classification steps and reports its
// terminal disposition. Row-level failures never abort the batch; storage
// failures are escalated through failFast.
func (p *Pipeline) processRow(ctx context.Context, row model.TransactionRow, idx int, failFast func(error)) model.RowResult {
	rowResult := model.RowResult{Row: row, Index: idx}

	fp, err := fingerprint.New(row)
	if err != nil {
		rowResult.Outcome = model.OutcomeFailed
		rowResult.Err = err
		return rowResult
	}
	rowResult.Fingerprint = fp

	// Duplicate detection spans all prior submissions, not just this batch.
	existing, err := p.storage.FindByFingerprint(ctx, fp)
	switch {
	case err == nil:
		rowResult.Outcome = model.OutcomeSkippedDuplicate
		rowResult.Result = existing
		return rowResult
	case errors.Is(err, common.ErrNotFound):
	default:
		failFast(err)
		rowResult.Outcome = model.OutcomeFailed
		rowResult.Err = err
		return rowResult
	}

	outcome := model.OutcomeClassified
	cached, err := p.cache.Get(ctx, fp)
	if err != nil {
		failFast(err)
		rowResult.Outcome = model.OutcomeFailed
		rowResult.Err = err
		return rowResult
	}

	var classification model.ClassificationResult
	if cached != nil {
		// Category and confidence are reused as-is; only vendor resolution
		// is repeated, since the registry may have evolved.
		outcome = model.OutcomeClassifiedFromCache
		classification = *cached
	} else {
		resp, err := p.oracle.Classify(ctx, row.Description, row.Amount, row.Currency)
		if err != nil {
			rowResult.Outcome = model.OutcomeFailed
			rowResult.Err = err
			return rowResult
		}
		classification = model.ClassificationResult{
			Category:     resp.Category,
			Confidence:   resp.Confidence,
			Rationale:    resp.Rationale,
			ClassifiedAt: time.Now().UTC(),
		}
		if _, err := p.cache.Put(ctx, fp, &classification); err != nil {
			// The judgment is still usable for this row.
			slog.Warn("failed to cache oracle result", "fingerprint", fp, "error", err)
		}
	}

	resolution, err := p.registry.Resolve(ctx, row.Description)
	if err != nil {
		rowResult.Outcome = model.OutcomeFailed
		rowResult.Err = fmt.Errorf("vendor resolution failed: %w", err)
		return rowResult
	}
	classification.VendorID = resolution.Vendor.ID
	classification.VendorName = resolution.Vendor.CanonicalName
	classification.VendorMatch = resolution.Confidence
	classification.VendorForReview = resolution.ForReview

	inserted, err := p.storage.InsertClassificationIfAbsent(ctx, fp, &classification)
	if err != nil {
		failFast(err)
		rowResult.Outcome = model.OutcomeFailed
		rowResult.Err = err
		return rowResult
	}
	if !inserted {
		// Lost the race against a concurrent submission of the same
		// fingerprint. Exactly one wins; this row is the other one.
		rowResult.Outcome = model.OutcomeSkippedDuplicate
		return rowResult
	}

	if err := p.storage.IncrementVendorUseCount(ctx, resolution.Vendor.ID); err != nil {
		slog.Warn("failed to bump vendor use count", "vendor_id", resolution.Vendor.ID, "error", err)
	}

	rowResult.Outcome = outcome
	rowResult.Result = &classification
	return rowResult
}

// batchStatus derives the batch disposition from the row outcomes. Skipped
// duplicates count as successes.
func batchStatus(summary model.BatchSummary, attempted int) model.BatchStatus {
	if attempted == 0 {
		return model.BatchFailed
	}
	switch {
	case summary.Failed == 0:
		return model.BatchCompleted
	case summary.Failed == attempted:
		return model.BatchFailed
	default:
		return model.BatchPartiallyCompleted
	}
}
