package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerhound/ledgerhound/internal/model"
	"github.com/ledgerhound/ledgerhound/internal/storage"
)

func newTestCache(t *testing.T) (*ClassificationCache, *storage.SQLiteStorage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	return New(store), store
}

func result(category model.Category, confidence float64) *model.ClassificationResult {
	return &model.ClassificationResult{
		Category:     category,
		Confidence:   confidence,
		ClassifiedAt: time.Now().UTC(),
	}
}

func TestCache_MissThenHit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	fp := model.Fingerprint("fp-1")

	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Nil(t, got, "expected miss on empty cache")

	inserted, err := c.Put(ctx, fp, result(model.CategoryVendorPayment, 0.95))
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err = c.Get(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.CategoryVendorPayment, got.Category)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
}

func TestCache_WriteOnce(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	fp := model.Fingerprint("fp-1")

	_, err := c.Put(ctx, fp, result(model.CategoryVendorPayment, 0.95))
	require.NoError(t, err)

	inserted, err := c.Put(ctx, fp, result(model.CategoryBankFee, 0.50))
	require.NoError(t, err)
	assert.False(t, inserted, "second put must be a no-op")

	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryVendorPayment, got.Category)
}

func TestCache_ForceReclassifyVersions(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()
	fp := model.Fingerprint("fp-1")

	_, err := c.Put(ctx, fp, result(model.CategoryNotCategorized, 0.3))
	require.NoError(t, err)
	_, err = store.InsertClassificationIfAbsent(ctx, fp, result(model.CategoryNotCategorized, 0.3))
	require.NoError(t, err)

	require.NoError(t, c.ForceReclassify(ctx, fp, result(model.CategoryTaxPayment, 0.9)))

	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryTaxPayment, got.Category)

	versions, err := c.Versions(ctx, fp)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, model.CategoryNotCategorized, versions[0].Category)
	assert.Equal(t, model.CategoryTaxPayment, versions[1].Category)
}

func TestCache_ForceReclassifyUnknownFingerprint(t *testing.T) {
	c, _ := newTestCache(t)

	err := c.ForceReclassify(context.Background(), "fp-missing", result(model.CategoryTaxPayment, 0.9))
	require.Error(t, err, "reclassify requires an existing record")
}

func TestCache_ReadThroughFromStorage(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	ctx := context.Background()
	fp := model.Fingerprint("fp-1")

	// Cached behind this cache's back, as a previous run would leave it.
	_, err = store.PutCachedResultIfAbsent(ctx, fp, result(model.CategorySalaryPayment, 0.88))
	require.NoError(t, err)

	c := New(store)
	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.CategorySalaryPayment, got.Category)
}
