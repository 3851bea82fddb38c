package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State is the last known call budget of one downstream bucket, usually a
// shop domain.
type State struct {
	Key            string
	Limit          int
	Remaining      int
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

type StateStore interface {
	Get(ctx context.Context, key string) (State, error)
	Upsert(ctx context.Context, state State) error
}

// Observation is what one downstream response reported about the budget.
// HasBudget is false when the response carried no budget information.
type Observation struct {
	StatusCode int
	Limit      int
	Remaining  int
	HasBudget  bool
	RetryAfter *time.Duration
}

type ThrottledError struct {
	Key        string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: bucket %q throttled for %s", strings.TrimSpace(e.Key), e.RetryAfter)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"bucket_key": strings.TrimSpace(e.Key)}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorDownstreamWriteFailed).
		WithMetadata(metadata)
}

// AdaptivePolicy refuses calls while a bucket is known to be throttled and
// backs off exponentially when a throttled response gives no retry hint.
type AdaptivePolicy struct {
	Store            StateStore
	Now              func() time.Time
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DefaultRetryHint time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:            store,
		Now:              func() time.Time { return time.Now().UTC() },
		InitialBackoff:   time.Second,
		MaxBackoff:       time.Minute,
		DefaultRetryHint: 2 * time.Second,
	}
}

func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, normalizeKey(key))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{Key: state.Key, RetryAfter: until.Sub(now)}.ToServiceError()
	}
	return nil
}

func (p *AdaptivePolicy) AfterCall(ctx context.Context, key string, obs Observation) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = normalizeKey(key)
	now := p.now()
	state, err := p.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{Key: key}
	}

	state.LastStatus = obs.StatusCode
	state.UpdatedAt = now
	if obs.HasBudget {
		state.Limit = obs.Limit
		state.Remaining = obs.Remaining
	}
	state.RetryAfter = nil
	if obs.RetryAfter != nil && *obs.RetryAfter > 0 {
		retryAfter := *obs.RetryAfter
		state.RetryAfter = &retryAfter
	}

	if !isThrottled(obs) {
		state.Attempts = 0
		state.ThrottledUntil = nil
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts++
	delay := p.nextBackoff(state.Attempts)
	if state.RetryAfter != nil {
		delay = *state.RetryAfter
	}
	until := now.Add(delay)
	state.ThrottledUntil = &until
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *AdaptivePolicy) nextBackoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = p.defaultRetryHint()
	}
	maximum := p.MaxBackoff
	if maximum <= 0 {
		maximum = time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func (p *AdaptivePolicy) defaultRetryHint() time.Duration {
	if p != nil && p.DefaultRetryHint > 0 {
		return p.DefaultRetryHint
	}
	return 2 * time.Second
}

func isThrottled(obs Observation) bool {
	if obs.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if obs.StatusCode >= 500 {
		return false
	}
	return obs.HasBudget && obs.Remaining <= 0
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[normalizeKey(key)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = normalizeKey(state.Key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.Key] = state
	return nil
}
