// Package jobs runs batches asynchronously, tracking one state machine per
// batch id: Submitted -> Running -> exactly one terminal state. Submission
// is idempotent per batch id; cancellation is cooperative.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/fingerprint"
	"github.com/ledgerhound/ledgerhound/internal/model"
	"github.com/ledgerhound/ledgerhound/internal/pipeline"
	"github.com/ledgerhound/ledgerhound/internal/service"
)

// Runner executes one batch. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, batch model.Batch) (*model.BatchResult, error)
}

// RunnerFactory builds a Runner whose progress feeds the given callback.
// The orchestrator builds one runner per submission so concurrent batches
// report progress independently.
type RunnerFactory func(onProgress pipeline.ProgressFunc) Runner

// PipelineFactory adapts the classification pipeline to the orchestrator.
func PipelineFactory(storage service.Storage, oracle service.Oracle, registry pipeline.Resolver, cache pipeline.ResultCache, cfg pipeline.Config) RunnerFactory {
	return func(onProgress pipeline.ProgressFunc) Runner {
		cfg := cfg
		cfg.OnProgress = onProgress
		return pipeline.New(storage, oracle, registry, cache, cfg)
	}
}

// Config holds orchestrator tuning knobs.
type Config struct {
	// BatchTimeout is the overall per-batch deadline. A batch exceeding it
	// is Failed, retaining already-completed rows. Zero means no deadline.
	BatchTimeout time.Duration
	// Executors bounds how many batches run concurrently. Row-level
	// parallelism within a batch is the pipeline's worker pool.
	Executors int
	// QueueCapacity bounds submissions waiting for an executor.
	QueueCapacity int
}

// DefaultExecutors is used when Config.Executors is unset.
const DefaultExecutors = 2

// Progress is a point-in-time view of a batch. ProcessedCount is
// monotonically non-decreasing until the batch reaches a terminal state.
type Progress struct {
	Status         model.BatchStatus
	ProcessedCount int
	TotalCount     int
}

// Job is the handle returned by Submit.
type Job struct {
	result *model.BatchResult
	err    error
	done   chan struct{}
	cancel context.CancelFunc

	ID      string
	BatchID string

	status    model.BatchStatus
	processed int
	total     int
	cancelled bool
	mu        sync.Mutex
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the batch result once the job is terminal, nil before.
func (j *Job) Result() (*model.BatchResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

func (j *Job) progress() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Progress{Status: j.status, ProcessedCount: j.processed, TotalCount: j.total}
}

// Orchestrator owns the in-flight jobs of this process. Batch records are
// also persisted, so idempotency holds across restarts. Submissions flow
// through a bounded in-memory queue consumed by a fixed set of executors.
type Orchestrator struct {
	storage service.Storage
	factory RunnerFactory
	jobs    map[string]*Job
	queue   *queue
	timeout time.Duration
	mu      sync.Mutex
}

// NewOrchestrator creates an orchestrator running batches through runners
// built by factory.
func NewOrchestrator(storage service.Storage, factory RunnerFactory, cfg Config) *Orchestrator {
	executors := cfg.Executors
	if executors <= 0 {
		executors = DefaultExecutors
	}

	o := &Orchestrator{
		storage: storage,
		factory: factory,
		jobs:    make(map[string]*Job),
		queue:   newQueue(cfg.QueueCapacity),
		timeout: cfg.BatchTimeout,
	}

	for i := 0; i < executors; i++ {
		go o.executor()
	}

	return o
}

// Close stops intake and releases the executors. In-flight batches finish;
// queued ones are dropped and re-run on resubmission.
func (o *Orchestrator) Close() {
	o.queue.close()
}

func (o *Orchestrator) executor() {
	for {
		select {
		case <-o.queue.closed:
			return
		case s := <-o.queue.ch:
			o.run(s.ctx, s.job, s.batch)
		}
	}
}

// Submit registers the batch and starts it in the background. Submission is
// idempotent: a batch id already known and not in a retryable terminal state
// (Failed, Cancelled) returns the existing handle without re-running. An
// empty batchID is derived from the row set, so identical resubmissions
// collapse even when the caller supplies no id.
func (o *Orchestrator) Submit(ctx context.Context, batchID string, rows []model.TransactionRow) (*Job, error) {
	if len(rows) == 0 {
		return nil, common.NewValidationError("rows", "empty batch")
	}
	if batchID == "" {
		batchID = DeriveBatchID(rows)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.jobs[batchID]; ok && !retryable(existing.progress().Status) {
		slog.Debug("batch already submitted", "batch_id", batchID)
		return existing, nil
	}

	inserted, err := o.storage.InsertBatchIfAbsent(ctx, batchID, len(rows))
	if err != nil {
		return nil, fmt.Errorf("failed to register batch: %w", err)
	}
	if !inserted {
		record, err := o.storage.GetBatch(ctx, batchID)
		if err != nil {
			return nil, fmt.Errorf("failed to load batch record: %w", err)
		}
		if record.Status.Terminal() && !retryable(record.Status) {
			return o.snapshotJob(record), nil
		}
		// Failed or cancelled in a previous run, or left non-terminal by a
		// dead process. Re-running is safe: already-persisted rows are
		// skipped as duplicates and cached judgments short-circuit the
		// oracle.
		slog.Info("re-running batch", "batch_id", batchID, "previous_status", record.Status)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	job := &Job{
		ID:      uuid.NewString(),
		BatchID: batchID,
		status:  model.BatchSubmitted,
		total:   len(rows),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	o.jobs[batchID] = job

	batch := model.Batch{ID: batchID, Rows: rows, SubmittedAt: time.Now().UTC()}
	if err := o.queue.enqueue(ctx, submission{ctx: runCtx, job: job, batch: batch}); err != nil {
		cancel()
		delete(o.jobs, batchID)
		return nil, err
	}

	return job, nil
}

// Poll reports batch progress. Safe to call concurrently. Falls back to the
// persisted batch record for batches not in flight in this process.
func (o *Orchestrator) Poll(ctx context.Context, batchID string) (Progress, error) {
	o.mu.Lock()
	job, ok := o.jobs[batchID]
	o.mu.Unlock()

	if ok {
		return job.progress(), nil
	}

	record, err := o.storage.GetBatch(ctx, batchID)
	if err != nil {
		return Progress{}, err
	}
	return recordProgress(record), nil
}

// Cancel requests cancellation of a running batch. Rows already dispatched
// are allowed to finish; no new rows are started. Cancelling a terminal
// batch is an error.
func (o *Orchestrator) Cancel(batchID string) error {
	o.mu.Lock()
	job, ok := o.jobs[batchID]
	o.mu.Unlock()

	if !ok {
		return common.ErrNotFound
	}

	job.mu.Lock()
	if job.status.Terminal() {
		status := job.status
		job.mu.Unlock()
		return fmt.Errorf("batch %s already %s", batchID, status)
	}
	job.cancelled = true
	job.mu.Unlock()

	slog.Info("cancelling batch", "batch_id", batchID)
	job.cancel()
	return nil
}

// Wait blocks until the job is terminal or ctx expires.
func (o *Orchestrator) Wait(ctx context.Context, job *Job) (*model.BatchResult, error) {
	select {
	case <-job.Done():
		return job.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, job *Job, batch model.Batch) {
	defer job.cancel()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	o.setStatus(job, model.BatchRunning, model.BatchSummary{TotalRows: job.total})

	runner := o.factory(func(done, total int) {
		job.mu.Lock()
		if done > job.processed {
			job.processed = done
		}
		job.mu.Unlock()
	})

	result, err := runner.Run(ctx, batch)
	if result == nil {
		result = &model.BatchResult{BatchID: batch.ID, Summary: model.BatchSummary{TotalRows: job.total}}
	}

	status := result.Status
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		// Deadline expiry fails the batch; completed rows stay persisted.
		status = model.BatchFailed
	case errors.Is(err, context.Canceled) && job.wasCancelled():
		status = model.BatchCancelled
	default:
		status = model.BatchFailed
	}
	result.Status = status

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if uerr := o.storage.UpdateBatchStatus(persistCtx, batch.ID, status, result.Summary); uerr != nil {
		slog.Error("failed to persist batch status", "batch_id", batch.ID, "error", uerr)
	}

	job.mu.Lock()
	job.status = status
	job.result = result
	job.err = err
	job.mu.Unlock()
	close(job.done)

	slog.Info("batch finished",
		"batch_id", batch.ID,
		"status", status,
		"processed", result.Summary.Processed,
		"cache_hits", result.Summary.CacheHits,
		"skipped", result.Summary.SkippedDuplicate,
		"failed", result.Summary.Failed)
}

func (o *Orchestrator) setStatus(job *Job, status model.BatchStatus, summary model.BatchSummary) {
	job.mu.Lock()
	job.status = status
	job.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.storage.UpdateBatchStatus(ctx, job.BatchID, status, summary); err != nil {
		slog.Error("failed to persist batch status", "batch_id", job.BatchID, "error", err)
	}
}

// snapshotJob wraps a persisted batch record as an already-settled handle.
// The snapshot never re-runs anything; Poll reads live progress from
// storage for batches owned elsewhere.
func (o *Orchestrator) snapshotJob(record *service.BatchRecord) *Job {
	job := &Job{
		ID:      uuid.NewString(),
		BatchID: record.ID,
		status:  record.Status,
		total:   record.TotalRows,
		done:    make(chan struct{}),
		cancel:  func() {},
		result: &model.BatchResult{
			BatchID: record.ID,
			Status:  record.Status,
			Summary: record.Summary,
		},
	}
	job.processed = doneRows(record.Summary)
	close(job.done)
	return job
}

func (j *Job) wasCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

func retryable(status model.BatchStatus) bool {
	return status == model.BatchFailed || status == model.BatchCancelled
}

func recordProgress(record *service.BatchRecord) Progress {
	return Progress{
		Status:         record.Status,
		ProcessedCount: doneRows(record.Summary),
		TotalCount:     record.TotalRows,
	}
}

func doneRows(summary model.BatchSummary) int {
	return summary.Processed + summary.CacheHits + summary.SkippedDuplicate + summary.Failed
}

// DeriveBatchID computes a content-derived batch id: the digest of the
// sorted row fingerprints. Identical row sets derive identical ids
// regardless of row order, which is what makes id-less resubmission
// idempotent.
func DeriveBatchID(rows []model.TransactionRow) string {
	digests := make([]string, 0, len(rows))
	for _, row := range rows {
		fp, err := fingerprint.New(row)
		if err != nil {
			// Invalid rows still contribute identity; they fail later in
			// the pipeline with a per-row ValidationError.
			raw := sha256.Sum256([]byte(fmt.Sprintf("%s|%v|%s|%s|%s",
				row.Date.Format(time.RFC3339), row.Amount, row.Currency, row.Description, row.AccountID)))
			fp = model.Fingerprint(hex.EncodeToString(raw[:]))
		}
		digests = append(digests, string(fp))
	}
	sort.Strings(digests)

	h := sha256.New()
	for _, d := range digests {
		h.Write([]byte(d))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
