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

// FindByFingerprint returns the persisted classification for fp, or
// common.ErrNotFound when no record exists.
func (s *SQLiteStorage) FindByFingerprint(ctx context.Context, fp model.Fingerprint) (*model.ClassificationResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.findByFingerprintTx(ctx, s.db, fp)
}

func (s *SQLiteStorage) findByFingerprintTx(ctx context.Context, q queryable, fp model.Fingerprint) (*model.ClassificationResult, error) {
	var (
		result    model.ClassificationResult
		vendorID  sql.NullInt64
		rationale sql.NullString
		forReview int
	)

	err := q.QueryRowContext(ctx, `
		SELECT c.category, c.confidence, c.rationale, c.vendor_id,
		       c.vendor_match, c.vendor_for_review, c.classified_at,
		       COALESCE(v.canonical_name, '')
		FROM classifications c
		LEFT JOIN vendors v ON v.id = c.vendor_id
		WHERE c.fingerprint = ?
	`, string(fp)).Scan(
		&result.Category,
		&result.Confidence,
		&rationale,
		&vendorID,
		&result.VendorMatch,
		&forReview,
		&result.ClassifiedAt,
		&result.VendorName,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find classification: %w", err)
	}

	result.Rationale = rationale.String
	if vendorID.Valid {
		result.VendorID = vendorID.Int64
	}
	result.VendorForReview = forReview != 0

	return &result, nil
}

// InsertClassificationIfAbsent persists the result for fp unless a record
// already exists. Returns true if this call inserted the record. The insert
// is atomic: under concurrent submissions of the same fingerprint exactly
// one caller observes true.
func (s *SQLiteStorage) InsertClassificationIfAbsent(ctx context.Context, fp model.Fingerprint, result *model.ClassificationResult) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if result == nil {
		return false, fmt.Errorf("result must not be nil")
	}
	if !model.ValidCategory(result.Category) {
		return false, fmt.Errorf("unknown category %q", result.Category)
	}

	classifiedAt := result.ClassifiedAt
	if classifiedAt.IsZero() {
		classifiedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO classifications (
			fingerprint, category, confidence, rationale,
			vendor_id, vendor_match, vendor_for_review, classified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(fp), string(result.Category), result.Confidence, result.Rationale,
		nullableID(result.VendorID), result.VendorMatch, boolToInt(result.VendorForReview), classifiedAt)

	if err != nil {
		return false, fmt.Errorf("failed to insert classification: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected == 1, nil
}

// SupersedeClassification moves the current result for fp into the history
// table and installs the replacement. The previous result stays
// retrievable via ListClassificationVersions.
func (s *SQLiteStorage) SupersedeClassification(ctx context.Context, fp model.Fingerprint, result *model.ClassificationResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("result must not be nil")
	}
	if !model.ValidCategory(result.Category) {
		return fmt.Errorf("unknown category %q", result.Category)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO classification_history (
			fingerprint, category, confidence, rationale, vendor_id, classified_at
		)
		SELECT fingerprint, category, confidence, rationale, vendor_id, classified_at
		FROM classifications WHERE fingerprint = ?
	`, string(fp))
	if err != nil {
		return fmt.Errorf("failed to archive classification: %w", err)
	}

	archived, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if archived == 0 {
		return common.ErrNotFound
	}

	classifiedAt := result.ClassifiedAt
	if classifiedAt.IsZero() {
		classifiedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE classifications
		SET category = ?, confidence = ?, rationale = ?, vendor_id = ?,
		    vendor_match = ?, vendor_for_review = ?, classified_at = ?
		WHERE fingerprint = ?
	`, string(result.Category), result.Confidence, result.Rationale,
		nullableID(result.VendorID), result.VendorMatch, boolToInt(result.VendorForReview),
		classifiedAt, string(fp))
	if err != nil {
		return fmt.Errorf("failed to replace classification: %w", err)
	}

	return tx.Commit()
}

// ListClassificationVersions returns superseded results for fp, oldest
// first, followed by the current one.
func (s *SQLiteStorage) ListClassificationVersions(ctx context.Context, fp model.Fingerprint) ([]model.ClassificationResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, confidence, rationale, vendor_id, classified_at
		FROM classification_history
		WHERE fingerprint = ?
		ORDER BY id
	`, string(fp))
	if err != nil {
		return nil, fmt.Errorf("failed to query classification history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []model.ClassificationResult
	for rows.Next() {
		var (
			r         model.ClassificationResult
			vendorID  sql.NullInt64
			rationale sql.NullString
		)
		if err := rows.Scan(&r.Category, &r.Confidence, &rationale, &vendorID, &r.ClassifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		r.Rationale = rationale.String
		if vendorID.Valid {
			r.VendorID = vendorID.Int64
		}
		versions = append(versions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	current, err := s.FindByFingerprint(ctx, fp)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return versions, nil
		}
		return nil, err
	}

	return append(versions, *current), nil
}

// ListByCategory returns all persisted records in the given category.
func (s *SQLiteStorage) ListByCategory(ctx context.Context, category model.Category) ([]service.Record, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listRecords(ctx, `
		SELECT c.fingerprint, c.category, c.confidence, c.rationale, c.vendor_id,
		       c.vendor_match, c.vendor_for_review, c.classified_at,
		       COALESCE(v.canonical_name, '')
		FROM classifications c
		LEFT JOIN vendors v ON v.id = c.vendor_id
		WHERE c.category = ?
		ORDER BY c.classified_at
	`, string(category))
}

// ListByVendor returns all persisted records attached to the given vendor.
func (s *SQLiteStorage) ListByVendor(ctx context.Context, vendorID int64) ([]service.Record, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listRecords(ctx, `
		SELECT c.fingerprint, c.category, c.confidence, c.rationale, c.vendor_id,
		       c.vendor_match, c.vendor_for_review, c.classified_at,
		       COALESCE(v.canonical_name, '')
		FROM classifications c
		LEFT JOIN vendors v ON v.id = c.vendor_id
		WHERE c.vendor_id = ?
		ORDER BY c.classified_at
	`, vendorID)
}

func (s *SQLiteStorage) listRecords(ctx context.Context, query string, args ...any) ([]service.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []service.Record
	for rows.Next() {
		var (
			rec       service.Record
			fp        string
			vendorID  sql.NullInt64
			rationale sql.NullString
			forReview int
		)
		if err := rows.Scan(&fp, &rec.Result.Category, &rec.Result.Confidence, &rationale,
			&vendorID, &rec.Result.VendorMatch, &forReview, &rec.Result.ClassifiedAt,
			&rec.Result.VendorName); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Fingerprint = model.Fingerprint(fp)
		rec.Result.Rationale = rationale.String
		if vendorID.Valid {
			rec.Result.VendorID = vendorID.Int64
		}
		rec.Result.VendorForReview = forReview != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
