package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/model"
	"github.com/ledgerhound/ledgerhound/internal/service"
)

// InsertBatchIfAbsent registers a batch id. Returns true if this call
// registered it; false means the id was already submitted, which is how
// resubmission is detected before any row processing begins.
func (s *SQLiteStorage) InsertBatchIfAbsent(ctx context.Context, batchID string, totalRows int) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if batchID == "" {
		return false, fmt.Errorf("batchID must not be empty")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO batches (id, status, total_rows, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, batchID, string(model.BatchSubmitted), totalRows, time.Now().UTC(), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert batch: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// UpdateBatchStatus records the batch's current status and summary counts.
func (s *SQLiteStorage) UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus, summary model.BatchSummary) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE batches
		SET status = ?, processed = ?, cache_hits = ?, skipped_duplicate = ?,
		    failed = ?, avg_confidence = ?, updated_at = ?
		WHERE id = ?
	`, string(status), summary.Processed, summary.CacheHits, summary.SkippedDuplicate,
		summary.Failed, summary.AvgConfidence, time.Now().UTC(), batchID)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// GetBatch returns the persisted batch record.
func (s *SQLiteStorage) GetBatch(ctx context.Context, batchID string) (*service.BatchRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		rec    service.BatchRecord
		status string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, total_rows, processed, cache_hits, skipped_duplicate,
		       failed, avg_confidence, submitted_at
		FROM batches WHERE id = ?
	`, batchID).Scan(&rec.ID, &status, &rec.TotalRows, &rec.Summary.Processed,
		&rec.Summary.CacheHits, &rec.Summary.SkippedDuplicate, &rec.Summary.Failed,
		&rec.Summary.AvgConfidence, &rec.SubmittedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	rec.Status = model.BatchStatus(status)
	rec.Summary.TotalRows = rec.TotalRows
	return &rec, nil
}
