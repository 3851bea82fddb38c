package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-ingest/core"
)

const derivedValueCacheKeyPrefix = "go-webhook-ingest::derived_value::v1"

// CachedDerivedValueStore serves reads through a cache. Derived values never
// change once claimed, so hits never go stale.
type CachedDerivedValueStore struct {
	base  core.DerivedValueStore
	cache repositorycache.CacheService
}

func NewCachedDerivedValueStore(
	base core.DerivedValueStore,
	cacheService repositorycache.CacheService,
) (*CachedDerivedValueStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base derived value store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: derived value cache service is required")
	}
	return &CachedDerivedValueStore{base: base, cache: cacheService}, nil
}

// DerivedValueCacheKey returns go-webhook-ingest::derived_value::v1::<origin>::<event_id>::<kind>
// with each segment URL-path escaped after normalization.
func DerivedValueCacheKey(key core.DerivedValueKey) (string, error) {
	normalized := key.Normalize()
	if err := validateDerivedValueKey(normalized); err != nil {
		return "", err
	}
	segments := []string{
		normalized.Origin,
		normalized.EventID,
		normalized.Kind,
	}
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(append([]string{derivedValueCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedDerivedValueStore) Get(ctx context.Context, key core.DerivedValueKey) (core.DerivedValue, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DerivedValue{}, fmt.Errorf("sqlstore: cached derived value store is not configured")
	}
	normalized := key.Normalize()
	cacheKey, err := DerivedValueCacheKey(normalized)
	if err != nil {
		return core.DerivedValue{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.DerivedValue, error) {
		return s.base.Get(ctx, normalized)
	})
}

func (s *CachedDerivedValueStore) Claim(ctx context.Context, key core.DerivedValueKey, candidate string) (core.DerivedValue, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DerivedValue{}, false, fmt.Errorf("sqlstore: cached derived value store is not configured")
	}
	normalized := key.Normalize()
	claimed, inserted, err := s.base.Claim(ctx, normalized, candidate)
	if err != nil {
		return core.DerivedValue{}, false, err
	}

	cacheKey, err := DerivedValueCacheKey(normalized)
	if err != nil {
		return core.DerivedValue{}, false, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.DerivedValue{}, false, err
	}
	return claimed, inserted, nil
}

var _ core.DerivedValueStore = (*CachedDerivedValueStore)(nil)
