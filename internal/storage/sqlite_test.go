package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/model"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func testResult(category model.Category) *model.ClassificationResult {
	return &model.ClassificationResult{
		Category:     category,
		Confidence:   0.92,
		Rationale:    "test",
		ClassifiedAt: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteStorage_InsertClassificationIfAbsent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	fp := model.Fingerprint("fp-1")

	inserted, err := store.InsertClassificationIfAbsent(ctx, fp, testResult(model.CategoryVendorPayment))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should report inserted")
	}

	// Second insert with a different category must be ignored; the first
	// result is never silently overwritten.
	inserted, err = store.InsertClassificationIfAbsent(ctx, fp, testResult(model.CategoryBankFee))
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if inserted {
		t.Fatal("second insert should be a no-op")
	}

	got, err := store.FindByFingerprint(ctx, fp)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if got.Category != model.CategoryVendorPayment {
		t.Errorf("expected original category to survive, got %s", got.Category)
	}
}

func TestSQLiteStorage_InsertClassification_Concurrent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	fp := model.Fingerprint("fp-race")

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := store.InsertClassificationIfAbsent(ctx, fp, testResult(model.CategoryVendorPayment))
			if err != nil {
				t.Errorf("insert failed: %v", err)
				return
			}
			if inserted {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winning insert, got %d", wins)
	}
}

func TestSQLiteStorage_FindByFingerprint_NotFound(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.FindByFingerprint(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_SupersedeClassification(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	fp := model.Fingerprint("fp-2")

	if _, err := store.InsertClassificationIfAbsent(ctx, fp, testResult(model.CategoryNotCategorized)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	replacement := testResult(model.CategoryTaxPayment)
	if err := store.SupersedeClassification(ctx, fp, replacement); err != nil {
		t.Fatalf("supersede failed: %v", err)
	}

	got, err := store.FindByFingerprint(ctx, fp)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if got.Category != model.CategoryTaxPayment {
		t.Errorf("expected replacement category, got %s", got.Category)
	}

	versions, err := store.ListClassificationVersions(ctx, fp)
	if err != nil {
		t.Fatalf("list versions failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].Category != model.CategoryNotCategorized {
		t.Errorf("expected old version first, got %s", versions[0].Category)
	}

	// Superseding a missing fingerprint is an error, not an insert.
	if err := store.SupersedeClassification(ctx, "missing", replacement); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_ListByCategoryAndVendor(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	vendorID, err := store.CreateVendor(ctx, &model.Vendor{CanonicalName: "Netflix"})
	if err != nil {
		t.Fatalf("create vendor failed: %v", err)
	}

	withVendor := testResult(model.CategoryVendorPayment)
	withVendor.VendorID = vendorID
	if _, err := store.InsertClassificationIfAbsent(ctx, "fp-a", withVendor); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := store.InsertClassificationIfAbsent(ctx, "fp-b", testResult(model.CategorySalaryPayment)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	byCat, err := store.ListByCategory(ctx, model.CategoryVendorPayment)
	if err != nil {
		t.Fatalf("list by category failed: %v", err)
	}
	if len(byCat) != 1 || byCat[0].Fingerprint != "fp-a" {
		t.Errorf("unexpected category listing: %+v", byCat)
	}
	if byCat[0].Result.VendorName != "Netflix" {
		t.Errorf("expected vendor name joined, got %q", byCat[0].Result.VendorName)
	}

	byVendor, err := store.ListByVendor(ctx, vendorID)
	if err != nil {
		t.Fatalf("list by vendor failed: %v", err)
	}
	if len(byVendor) != 1 || byVendor[0].Fingerprint != "fp-a" {
		t.Errorf("unexpected vendor listing: %+v", byVendor)
	}
}

func TestSQLiteStorage_VendorAliases(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	id1, err := store.CreateVendor(ctx, &model.Vendor{CanonicalName: "Netflix"})
	if err != nil {
		t.Fatalf("create vendor failed: %v", err)
	}
	id2, err := store.CreateVendor(ctx, &model.Vendor{CanonicalName: "Spotify"})
	if err != nil {
		t.Fatalf("create vendor failed: %v", err)
	}

	if err := store.AddVendorAlias(ctx, id1, "netflix.com"); err != nil {
		t.Fatalf("add alias failed: %v", err)
	}
	// Re-adding the same alias for the same vendor is a no-op.
	if err := store.AddVendorAlias(ctx, id1, "netflix.com"); err != nil {
		t.Fatalf("re-add alias failed: %v", err)
	}
	// A different vendor claiming the alias loses the race.
	err = store.AddVendorAlias(ctx, id2, "netflix.com")
	if !errors.Is(err, common.RegistryConflict) {
		t.Errorf("expected RegistryConflict, got %v", err)
	}

	vendor, err := store.GetVendor(ctx, id1)
	if err != nil {
		t.Fatalf("get vendor failed: %v", err)
	}
	if len(vendor.Aliases) != 1 || vendor.Aliases[0] != "netflix.com" {
		t.Errorf("unexpected aliases: %v", vendor.Aliases)
	}
}

func TestSQLiteStorage_CreateVendor_Duplicate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	id1, err := store.CreateVendor(ctx, &model.Vendor{CanonicalName: "Netflix"})
	if err != nil {
		t.Fatalf("create vendor failed: %v", err)
	}
	id2, err := store.CreateVendor(ctx, &model.Vendor{CanonicalName: "Netflix"})
	if err != nil {
		t.Fatalf("duplicate create failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("duplicate create should resolve to existing id: %d vs %d", id1, id2)
	}
}

func TestSQLiteStorage_Batches(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	inserted, err := store.InsertBatchIfAbsent(ctx, "batch-1", 3)
	if err != nil {
		t.Fatalf("insert batch failed: %v", err)
	}
	if !inserted {
		t.Fatal("first batch insert should succeed")
	}

	inserted, err = store.InsertBatchIfAbsent(ctx, "batch-1", 3)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if inserted {
		t.Fatal("resubmission should be detected")
	}

	summary := model.BatchSummary{Processed: 2, SkippedDuplicate: 1, TotalRows: 3, AvgConfidence: 0.9}
	if err := store.UpdateBatchStatus(ctx, "batch-1", model.BatchCompleted, summary); err != nil {
		t.Fatalf("update batch failed: %v", err)
	}

	rec, err := store.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("get batch failed: %v", err)
	}
	if rec.Status != model.BatchCompleted {
		t.Errorf("expected Completed, got %s", rec.Status)
	}
	if rec.Summary.Processed != 2 || rec.Summary.SkippedDuplicate != 1 {
		t.Errorf("unexpected summary: %+v", rec.Summary)
	}
}

func TestSQLiteStorage_OracleCache(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	fp := model.Fingerprint("fp-cache-1")

	if _, err := store.GetCachedResult(ctx, fp); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty cache, got %v", err)
	}

	first := &model.ClassificationResult{
		Category:     model.CategoryBankFee,
		Confidence:   0.85,
		Rationale:    "monthly fee",
		ClassifiedAt: time.Now().UTC(),
	}
	inserted, err := store.PutCachedResultIfAbsent(ctx, fp, first)
	if err != nil {
		t.Fatalf("put cached result failed: %v", err)
	}
	if !inserted {
		t.Fatal("first put should insert")
	}

	// Write-once: a second put is a no-op.
	inserted, err = store.PutCachedResultIfAbsent(ctx, fp, &model.ClassificationResult{
		Category:   model.CategoryTaxPayment,
		Confidence: 0.5,
	})
	if err != nil {
		t.Fatalf("second put failed: %v", err)
	}
	if inserted {
		t.Fatal("second put should not insert")
	}

	got, err := store.GetCachedResult(ctx, fp)
	if err != nil {
		t.Fatalf("get cached result failed: %v", err)
	}
	if got.Category != model.CategoryBankFee {
		t.Errorf("expected bank_fee, got %s", got.Category)
	}
	if got.Rationale != "monthly fee" {
		t.Errorf("unexpected rationale %q", got.Rationale)
	}

	if err := store.ReplaceCachedResult(ctx, fp, &model.ClassificationResult{
		Category:     model.CategoryTaxPayment,
		Confidence:   0.95,
		ClassifiedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("replace cached result failed: %v", err)
	}

	got, err = store.GetCachedResult(ctx, fp)
	if err != nil {
		t.Fatalf("get after replace failed: %v", err)
	}
	if got.Category != model.CategoryTaxPayment {
		t.Errorf("expected tax_payment after replace, got %s", got.Category)
	}
}

func TestSQLiteStorage_ReplaceCachedResult_InsertsWhenAbsent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	fp := model.Fingerprint("fp-cache-2")

	if err := store.ReplaceCachedResult(ctx, fp, &model.ClassificationResult{
		Category:     model.CategoryVendorPayment,
		Confidence:   0.9,
		ClassifiedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("replace on empty cache failed: %v", err)
	}

	got, err := store.GetCachedResult(ctx, fp)
	if err != nil {
		t.Fatalf("get cached result failed: %v", err)
	}
	if got.Category != model.CategoryVendorPayment {
		t.Errorf("expected vendor_payment, got %s", got.Category)
	}
}
