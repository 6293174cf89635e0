package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/model"
)

// GetCachedResult returns the cached oracle judgment for fp, or
// common.ErrNotFound when the oracle was never asked about this fingerprint.
func (s *SQLiteStorage) GetCachedResult(ctx context.Context, fp model.Fingerprint) (*model.ClassificationResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		result    model.ClassificationResult
		rationale sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT category, confidence, rationale, classified_at
		FROM oracle_cache
		WHERE fingerprint = ?
	`, string(fp)).Scan(&result.Category, &result.Confidence, &rationale, &result.ClassifiedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle cache: %w", err)
	}

	result.Rationale = rationale.String
	return &result, nil
}

// PutCachedResultIfAbsent caches the oracle judgment for fp unless one is
// already cached. Returns true if this call stored it.
func (s *SQLiteStorage) PutCachedResultIfAbsent(ctx context.Context, fp model.Fingerprint, result *model.ClassificationResult) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if result == nil {
		return false, fmt.Errorf("result must not be nil")
	}
	if !model.ValidCategory(result.Category) {
		return false, fmt.Errorf("unknown category %q", result.Category)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO oracle_cache (fingerprint, category, confidence, rationale, classified_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(fp), string(result.Category), result.Confidence, result.Rationale,
		cacheTimestamp(result.ClassifiedAt))

	if err != nil {
		return false, fmt.Errorf("failed to cache oracle result: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected == 1, nil
}

// ReplaceCachedResult overwrites the cached judgment for fp. Used by forced
// re-classification; the superseded judgment is preserved through the
// classification history, not here.
func (s *SQLiteStorage) ReplaceCachedResult(ctx context.Context, fp model.Fingerprint, result *model.ClassificationResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("result must not be nil")
	}
	if !model.ValidCategory(result.Category) {
		return fmt.Errorf("unknown category %q", result.Category)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_cache (fingerprint, category, confidence, rationale, classified_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			category = excluded.category,
			confidence = excluded.confidence,
			rationale = excluded.rationale,
			classified_at = excluded.classified_at
	`, string(fp), string(result.Category), result.Confidence, result.Rationale,
		cacheTimestamp(result.ClassifiedAt))

	if err != nil {
		return fmt.Errorf("failed to replace cached result: %w", err)
	}
	return nil
}

func cacheTimestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
