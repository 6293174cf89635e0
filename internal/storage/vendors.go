package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/model"
)

// GetVendor retrieves a vendor by id, including its aliases.
func (s *SQLiteStorage) GetVendor(ctx context.Context, id int64) (*model.Vendor, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var vendor model.Vendor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, canonical_name, use_count, created_at, updated_at
		FROM vendors WHERE id = ?
	`, id).Scan(&vendor.ID, &vendor.CanonicalName, &vendor.UseCount, &vendor.CreatedAt, &vendor.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}

	aliases, err := s.vendorAliases(ctx, id)
	if err != nil {
		return nil, err
	}
	vendor.Aliases = aliases

	return &vendor, nil
}

// GetAllVendors retrieves every vendor with its aliases.
func (s *SQLiteStorage) GetAllVendors(ctx context.Context) ([]model.Vendor, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, canonical_name, use_count, created_at, updated_at
		FROM vendors ORDER BY canonical_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var vendors []model.Vendor
	byID := make(map[int64]int)
	for rows.Next() {
		var v model.Vendor
		if err := rows.Scan(&v.ID, &v.CanonicalName, &v.UseCount, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		byID[v.ID] = len(vendors)
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vendors: %w", err)
	}

	aliasRows, err := s.db.QueryContext(ctx, `SELECT vendor_id, alias FROM vendor_aliases ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}
	defer func() { _ = aliasRows.Close() }()

	for aliasRows.Next() {
		var (
			vendorID int64
			alias    string
		)
		if err := aliasRows.Scan(&vendorID, &alias); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		if idx, ok := byID[vendorID]; ok {
			vendors[idx].Aliases = append(vendors[idx].Aliases, alias)
		}
	}
	if err := aliasRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aliases: %w", err)
	}

	return vendors, nil
}

// CreateVendor inserts a new vendor. If the canonical name already exists
// (lost a creation race), the existing vendor's id is returned.
func (s *SQLiteStorage) CreateVendor(ctx context.Context, vendor *model.Vendor) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if vendor == nil || strings.TrimSpace(vendor.CanonicalName) == "" {
		return 0, fmt.Errorf("vendor canonical name must not be empty")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO vendors (canonical_name, use_count, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, vendor.CanonicalName, vendor.UseCount, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create vendor: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read vendor id: %w", err)
		}
		vendor.ID = id
		return id, nil
	}

	// Someone else created it first; resolve to the winning row.
	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM vendors WHERE canonical_name = ?`, vendor.CanonicalName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve vendor after conflict: %w", err)
	}
	vendor.ID = id
	return id, nil
}

// AddVendorAlias records alias as a known name for the vendor. The alias
// column is the primary key, so two workers racing to claim the same alias
// for different vendors resolve deterministically: the loser gets
// common.RegistryConflict. Re-adding an alias the vendor already owns is a
// no-op.
func (s *SQLiteStorage) AddVendorAlias(ctx context.Context, vendorID int64, alias string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(alias) == "" {
		return fmt.Errorf("alias must not be empty")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO vendor_aliases (alias, vendor_id) VALUES (?, ?)
	`, alias, vendorID)
	if err != nil {
		return fmt.Errorf("failed to add alias: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 1 {
		_, err = s.db.ExecContext(ctx,
			`UPDATE vendors SET updated_at = ? WHERE id = ?`, time.Now().UTC(), vendorID)
		if err != nil {
			return fmt.Errorf("failed to touch vendor: %w", err)
		}
		return nil
	}

	var owner int64
	err = s.db.QueryRowContext(ctx,
		`SELECT vendor_id FROM vendor_aliases WHERE alias = ?`, alias).Scan(&owner)
	if err != nil {
		return fmt.Errorf("failed to resolve alias owner: %w", err)
	}
	if owner != vendorID {
		return fmt.Errorf("alias %q already belongs to vendor %d: %w", alias, owner, common.RegistryConflict)
	}
	return nil
}

// IncrementVendorUseCount bumps the vendor's prior transaction volume.
func (s *SQLiteStorage) IncrementVendorUseCount(ctx context.Context, vendorID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE vendors SET use_count = use_count + 1, updated_at = ? WHERE id = ?
	`, time.Now().UTC(), vendorID)
	if err != nil {
		return fmt.Errorf("failed to increment use count: %w", err)
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

func (s *SQLiteStorage) vendorAliases(ctx context.Context, vendorID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alias FROM vendor_aliases WHERE vendor_id = ? ORDER BY alias`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var aliases []string
	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, alias)
	}
	return aliases, rows.Err()
}
