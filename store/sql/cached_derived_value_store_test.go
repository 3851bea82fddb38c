package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-ingest/core"
)

type stubDerivedValueStore struct {
	mu         sync.Mutex
	values     map[core.DerivedValueKey]core.DerivedValue
	getCalls   int
	claimCalls int
	getErr     error
}

func (s *stubDerivedValueStore) Get(_ context.Context, key core.DerivedValueKey) (core.DerivedValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.DerivedValue{}, s.getErr
	}
	value, ok := s.values[key]
	if !ok {
		return core.DerivedValue{}, core.NotFoundError("derived value not found", nil)
	}
	return value, nil
}

func (s *stubDerivedValueStore) Claim(_ context.Context, key core.DerivedValueKey, candidate string) (core.DerivedValue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimCalls++
	if existing, ok := s.values[key]; ok {
		return existing, false, nil
	}
	if s.values == nil {
		s.values = map[core.DerivedValueKey]core.DerivedValue{}
	}
	value := core.DerivedValue{Key: key, Value: candidate, CreatedAt: time.Now().UTC()}
	s.values[key] = value
	return value, true, nil
}

func TestCachedDerivedValueStore_Get_MissFetchThenHit(t *testing.T) {
	key := core.DerivedValueKey{Origin: "shopify", EventID: "1001", Kind: core.DerivedValueKindVoucherCode}
	base := &stubDerivedValueStore{
		values: map[core.DerivedValueKey]core.DerivedValue{
			key: {Key: key, Value: "RE4-CACHED"},
		},
	}
	store, err := NewCachedDerivedValueStore(base, newTestDerivedValueCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		value, err := store.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("get %d: %v", attempt, err)
		}
		if value.Value != "RE4-CACHED" {
			t.Fatalf("unexpected value %q", value.Value)
		}
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be a cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedDerivedValueStore_ClaimInvalidatesMiss(t *testing.T) {
	key := core.DerivedValueKey{Origin: "shopify", EventID: "1002", Kind: core.DerivedValueKindVoucherCode}
	base := &stubDerivedValueStore{}
	store, err := NewCachedDerivedValueStore(base, newTestDerivedValueCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	if _, err := store.Get(context.Background(), key); !core.IsNotFound(err) {
		t.Fatalf("expected not found before claim, got %v", err)
	}
	claimed, inserted, err := store.Claim(context.Background(), key, "RE4-NEW")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !inserted || claimed.Value != "RE4-NEW" {
		t.Fatalf("expected claim to win, got %+v", claimed)
	}

	value, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get after claim: %v", err)
	}
	if value.Value != "RE4-NEW" {
		t.Fatalf("expected claimed value after invalidation, got %q", value.Value)
	}
}

func TestCachedDerivedValueStore_PropagatesBaseErrors(t *testing.T) {
	unavailable := errors.New("connection refused")
	base := &stubDerivedValueStore{getErr: core.StoreUnavailableError(unavailable, nil)}
	store, err := NewCachedDerivedValueStore(base, newTestDerivedValueCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	_, err = store.Get(context.Background(), core.DerivedValueKey{Origin: "shopify", EventID: "1003", Kind: "voucher_code"})
	if !errors.Is(err, unavailable) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func TestDerivedValueCacheKey_Contract(t *testing.T) {
	key, err := DerivedValueCacheKey(core.DerivedValueKey{
		Origin:  " shopify ",
		EventID: "gid://shopify/Order/1",
		Kind:    " Voucher_Code ",
	})
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}

	const expected = "go-webhook-ingest::derived_value::v1::shopify::gid:%2F%2Fshopify%2FOrder%2F1::voucher_code"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	if _, err := DerivedValueCacheKey(core.DerivedValueKey{Origin: "shopify"}); err == nil {
		t.Fatalf("expected incomplete key to fail")
	}
}

func TestNewCachedDerivedValueStore_RequiresDependencies(t *testing.T) {
	if _, err := NewCachedDerivedValueStore(nil, newTestDerivedValueCacheService(t)); err == nil {
		t.Fatalf("expected missing base store to fail")
	}
	if _, err := NewCachedDerivedValueStore(&stubDerivedValueStore{}, nil); err == nil {
		t.Fatalf("expected missing cache service to fail")
	}
}

func newTestDerivedValueCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
