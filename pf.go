package redproxy

import (
	"context"
	"time"

	"github.com/wanredis/redproxy/internal/keyhash"
)

// PFCache wraps the store's HyperLogLog structure with content-addressed
// deduplication of inputs. HyperLogLog is probabilistic: counts are
// estimates, suitable for "unique viewers of an article" style metrics, not
// exact accounting.
//
// Each added group of parts is reduced to one content digest before PFADD,
// so re-adding the same logical input never changes the estimate.
type PFCache struct {
	store  Store
	logger Logger
}

// NewPFCache returns a HyperLogLog wrapper sharing the coordinator's store.
func (c *CacheCoordinator) NewPFCache() *PFCache {
	return &PFCache{store: c.store, logger: c.logger}
}

// Add registers each group of parts as one element of the HyperLogLog at
// key and reports whether the estimate changed. A positive ttl refreshes the
// key's expiry after the add. With no groups, Add is a no-op returning false.
func (p *PFCache) Add(ctx context.Context, key string, ttl time.Duration, groups ...[]string) (bool, error) {
	if key == "" {
		return false, ErrMissingKey
	}
	if len(groups) == 0 {
		return false, nil
	}
	elements := make([]string, len(groups))
	for i, group := range groups {
		elements[i] = keyhash.Signature(group...)
	}
	changed, err := p.store.PFAdd(ctx, key, elements)
	if err != nil {
		return false, err
	}
	if ttl > 0 {
		if _, err := p.store.Expire(ctx, key, ttl); err != nil {
			return false, err
		}
	}
	p.logger.Debug("pf add", "key", key, "elements", len(elements), "changed", changed)
	return changed, nil
}

// Count returns the estimated cardinality of the union of key and any
// additional keys.
func (p *PFCache) Count(ctx context.Context, key string, more ...string) (int64, error) {
	if key == "" {
		return 0, ErrMissingKey
	}
	keys := append([]string{key}, more...)
	return p.store.PFCount(ctx, keys...)
}

// Merge merges the source structures into dst as a union.
func (p *PFCache) Merge(ctx context.Context, dst string, sources ...string) error {
	if dst == "" {
		return ErrMissingKey
	}
	if len(sources) == 0 {
		return ErrNoKeys
	}
	return p.store.PFMerge(ctx, dst, sources...)
}
