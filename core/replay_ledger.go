package core

import (
	"container/heap"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Shopify keeps retrying a failed delivery for up to 48 hours.
const DefaultReplayLedgerTTL = 48 * time.Hour
const defaultReplayLedgerMaxEntries = 16384

// MemoryReplayLedger remembers claimed keys for a bounded time. It backs
// best-effort dedupe when no persistent store is configured; entries are lost
// on restart.
type MemoryReplayLedger struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	entries    map[string]time.Time
	expiries   expiryHeap
	Now        func() time.Time
}

func NewMemoryReplayLedger(defaultTTL time.Duration) *MemoryReplayLedger {
	return NewMemoryReplayLedgerWithLimits(defaultTTL, defaultReplayLedgerMaxEntries)
}

func NewMemoryReplayLedgerWithLimits(defaultTTL time.Duration, maxEntries int) *MemoryReplayLedger {
	if defaultTTL <= 0 {
		defaultTTL = DefaultReplayLedgerTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultReplayLedgerMaxEntries
	}
	return &MemoryReplayLedger{
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		entries:    map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Claim returns true the first time key is seen within its ttl.
func (l *MemoryReplayLedger) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("core: replay ledger is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("core: replay key is required")
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if expiresAt, ok := l.entries[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	l.pruneLocked(now)
	expiresAt := now.Add(ttl)
	l.entries[key] = expiresAt
	heap.Push(&l.expiries, ledgerExpiry{key: key, expiresAt: expiresAt})
	return true, nil
}

func (l *MemoryReplayLedger) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryReplayLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// pruneLocked pops expired entries off the expiry heap and, when still at
// capacity, the entries closest to expiry. Heap items whose key was claimed
// again with a newer expiry are discarded without touching the map.
func (l *MemoryReplayLedger) pruneLocked(now time.Time) {
	for l.expiries.Len() > 0 {
		next := l.expiries[0]
		if now.Before(next.expiresAt) && len(l.entries) < l.maxEntries {
			return
		}
		heap.Pop(&l.expiries)
		if current, ok := l.entries[next.key]; ok && current.Equal(next.expiresAt) {
			delete(l.entries, next.key)
		}
	}
}

type ledgerExpiry struct {
	key       string
	expiresAt time.Time
}

type expiryHeap []ledgerExpiry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *expiryHeap) Push(x any) {
	*h = append(*h, x.(ledgerExpiry))
}

func (h *expiryHeap) Pop() any {
	old := *h
	last := old[len(old)-1]
	*h = old[:len(old)-1]
	return last
}

// LedgerIngestionStore is the verification-only stand-in for a persistent
// IngestionStore. Nothing is kept beyond the ledger key, so first deliveries
// report IngestOutcomeSkipped and repeats within the ttl report
// IngestOutcomeAlreadyPresent.
type LedgerIngestionStore struct {
	Ledger ReplayLedger
	TTL    time.Duration
}

func NewLedgerIngestionStore(ledger ReplayLedger, ttl time.Duration) *LedgerIngestionStore {
	if ledger == nil {
		ledger = NewMemoryReplayLedger(ttl)
	}
	return &LedgerIngestionStore{Ledger: ledger, TTL: ttl}
}

func (s *LedgerIngestionStore) Ingest(ctx context.Context, record IngestionRecord) (IngestOutcome, error) {
	if s == nil || s.Ledger == nil {
		return IngestOutcomeSkipped, nil
	}
	if strings.TrimSpace(record.EventID) == "" {
		return IngestOutcomeSkipped, nil
	}
	claimed, err := s.Ledger.Claim(ctx, DedupeKey(record.Origin, record.EventID), s.TTL)
	if err != nil {
		return "", StoreUnavailableError(err, map[string]any{"origin": record.Origin})
	}
	if !claimed {
		return IngestOutcomeAlreadyPresent, nil
	}
	return IngestOutcomeSkipped, nil
}

func (s *LedgerIngestionStore) Get(_ context.Context, origin string, eventID string) (IngestionRecord, error) {
	return IngestionRecord{}, NotFoundError(
		fmt.Sprintf("ingestion record %s not retained in verification-only mode", DedupeKey(origin, eventID)),
		nil,
	)
}

func (s *LedgerIngestionStore) ListSince(context.Context, time.Time, int) ([]IngestionRecord, error) {
	return []IngestionRecord{}, nil
}

func (s *LedgerIngestionStore) Ping(context.Context) error {
	return nil
}

func DedupeKey(origin string, eventID string) string {
	return strings.TrimSpace(origin) + ":" + strings.TrimSpace(eventID)
}

var (
	_ ReplayLedger   = (*MemoryReplayLedger)(nil)
	_ IngestionStore = (*LedgerIngestionStore)(nil)
)
