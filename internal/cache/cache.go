// Package cache maps fingerprints to prior oracle judgments so the oracle
// is never asked the same question twice.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/model"
	"github.com/ledgerhound/ledgerhound/internal/service"
)

// ClassificationCache is a write-once-per-key cache backed by storage, with
// an in-memory read-through layer. A second Put for an existing key is a
// no-op; ForceReclassify versions the old result instead of destroying it.
type ClassificationCache struct {
	storage service.Storage
	memory  map[model.Fingerprint]*model.ClassificationResult
	mu      sync.RWMutex
}

// New creates a cache over the given storage.
func New(storage service.Storage) *ClassificationCache {
	return &ClassificationCache{
		storage: storage,
		memory:  make(map[model.Fingerprint]*model.ClassificationResult),
	}
}

// Get returns the cached result for fp, or (nil, nil) on a miss.
func (c *ClassificationCache) Get(ctx context.Context, fp model.Fingerprint) (*model.ClassificationResult, error) {
	c.mu.RLock()
	if result, ok := c.memory[fp]; ok {
		c.mu.RUnlock()
		return result, nil
	}
	c.mu.RUnlock()

	result, err := c.storage.GetCachedResult(ctx, fp)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	c.remember(fp, result)
	return result, nil
}

// Put stores the result for fp unless a result already exists. Returns
// true if this call stored it.
func (c *ClassificationCache) Put(ctx context.Context, fp model.Fingerprint, result *model.ClassificationResult) (bool, error) {
	inserted, err := c.storage.PutCachedResultIfAbsent(ctx, fp, result)
	if err != nil {
		return false, fmt.Errorf("cache put failed: %w", err)
	}
	if inserted {
		c.remember(fp, result)
	}
	return inserted, nil
}

// ForceReclassify replaces the result for fp in both the cache and the
// persisted classification record, keeping the superseded version
// retrievable. This is the only sanctioned way to change an existing
// classification.
func (c *ClassificationCache) ForceReclassify(ctx context.Context, fp model.Fingerprint, result *model.ClassificationResult) error {
	if err := c.storage.SupersedeClassification(ctx, fp, result); err != nil {
		return fmt.Errorf("force reclassify failed: %w", err)
	}
	if err := c.storage.ReplaceCachedResult(ctx, fp, result); err != nil {
		return fmt.Errorf("force reclassify failed: %w", err)
	}
	c.remember(fp, result)
	return nil
}

// Versions lists superseded results for fp, oldest first, ending with the
// current one.
func (c *ClassificationCache) Versions(ctx context.Context, fp model.Fingerprint) ([]model.ClassificationResult, error) {
	return c.storage.ListClassificationVersions(ctx, fp)
}

func (c *ClassificationCache) remember(fp model.Fingerprint, result *model.ClassificationResult) {
	c.mu.Lock()
	c.memory[fp] = result
	c.mu.Unlock()
}
