package webhooks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

type memoryIngestionStore struct {
	mu      sync.Mutex
	records map[string]core.IngestionRecord
	calls   int
	err     error
}

func newMemoryIngestionStore() *memoryIngestionStore {
	return &memoryIngestionStore{records: map[string]core.IngestionRecord{}}
}

func (s *memoryIngestionStore) Ingest(_ context.Context, record core.IngestionRecord) (core.IngestOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", core.StoreUnavailableError(s.err, nil)
	}
	key := core.DedupeKey(record.Origin, record.EventID)
	if _, ok := s.records[key]; ok {
		return core.IngestOutcomeAlreadyPresent, nil
	}
	s.records[key] = record
	return core.IngestOutcomeInserted, nil
}

func (s *memoryIngestionStore) Get(_ context.Context, origin, eventID string) (core.IngestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[core.DedupeKey(origin, eventID)]
	if !ok {
		return core.IngestionRecord{}, core.NotFoundError("not found", nil)
	}
	return record, nil
}

func (s *memoryIngestionStore) ListSince(context.Context, time.Time, int) ([]core.IngestionRecord, error) {
	return nil, nil
}

func (s *memoryIngestionStore) Ping(context.Context) error { return s.err }

func (s *memoryIngestionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []core.VerifiedEvent
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ string, event core.VerifiedEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return d.err
}

type untouchableReader struct {
	t *testing.T
}

func (r untouchableReader) Read([]byte) (int, error) {
	r.t.Fatalf("body must not be read")
	return 0, io.EOF
}

const testSecret = "topsecret"

func newTestPipeline(t *testing.T, store core.IngestionStore, config PipelineConfig, opts ...PipelineOption) *Pipeline {
	t.Helper()
	verifier := newTestVerifier(t, testSecret)
	pipeline, err := NewPipeline(verifier, store, config, opts...)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return pipeline
}

func signedRequest(body []byte, secret string) Request {
	header := http.Header{}
	header.Set(HeaderHMAC, Sign([]byte(secret), body))
	header.Set(HeaderTopic, "orders/paid")
	header.Set(HeaderShopDomain, "example.myshopify.com")
	header.Set(HeaderWebhookID, "b54557e4-bdd9-4b37-8a5f-bf7d70bcd043")
	return Request{
		Method:      http.MethodPost,
		Route:       core.DefaultWebhookRoute,
		ContentType: "application/json",
		Header:      header,
		Body:        bytes.NewReader(body),
	}
}

func TestPipeline_AcceptsAndIngestsOnce(t *testing.T) {
	store := newMemoryIngestionStore()
	pipeline := newTestPipeline(t, store, PipelineConfig{Origin: "shopify"})
	body := []byte(`{"id": 123}`)

	receipt, err := pipeline.Receive(context.Background(), signedRequest(body, testSecret))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if receipt.StatusCode != http.StatusOK || receipt.Outcome != core.IngestOutcomeInserted {
		t.Fatalf("expected 200 inserted, got %+v", receipt)
	}
	if !receipt.ShouldDispatch() {
		t.Fatalf("expected inserted receipt to dispatch")
	}

	replay, err := pipeline.Receive(context.Background(), signedRequest(body, testSecret))
	if err != nil {
		t.Fatalf("receive replay: %v", err)
	}
	if replay.StatusCode != http.StatusOK || replay.Outcome != core.IngestOutcomeAlreadyPresent {
		t.Fatalf("expected 200 already_present, got %+v", replay)
	}
	if store.count() != 1 {
		t.Fatalf("expected one stored record, got %d", store.count())
	}

	record, err := store.Get(context.Background(), "shopify", "123")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if string(record.Payload) != string(body) {
		t.Fatalf("expected verbatim payload, got %s", record.Payload)
	}
	if record.BodySHA256 != BodyDigest(body) || record.Topic != "orders/paid" {
		t.Fatalf("unexpected record metadata %+v", record)
	}
}

func TestPipeline_GateRejectionDoesNotReadBody(t *testing.T) {
	store := newMemoryIngestionStore()
	pipeline := newTestPipeline(t, store, PipelineConfig{})

	req := Request{
		Method:      http.MethodGet,
		Route:       core.DefaultWebhookRoute,
		ContentType: "application/json",
		Body:        untouchableReader{t: t},
	}
	receipt, err := pipeline.Receive(context.Background(), req)
	if !core.IsTextCode(err, core.ErrorGateRejected) {
		t.Fatalf("expected gate rejection, got %v", err)
	}
	if receipt.StatusCode != http.StatusMethodNotAllowed || receipt.Allow != http.MethodPost {
		t.Fatalf("expected 405 with Allow POST, got %+v", receipt)
	}

	req.Method = http.MethodPost
	req.ContentType = "text/plain"
	receipt, _ = pipeline.Receive(context.Background(), req)
	if receipt.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", receipt.StatusCode)
	}
	if store.calls != 0 {
		t.Fatalf("expected store untouched")
	}
}

func TestPipeline_WrongSecretIsUnauthorized(t *testing.T) {
	store := newMemoryIngestionStore()
	pipeline := newTestPipeline(t, store, PipelineConfig{})

	receipt, err := pipeline.Receive(context.Background(), signedRequest([]byte(`{"id": 123}`), "othersecret"))
	if !core.IsTextCode(err, core.ErrorAuthenticationFailed) {
		t.Fatalf("expected authentication failure, got %v", err)
	}
	if receipt.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", receipt.StatusCode)
	}
	if store.calls != 0 {
		t.Fatalf("expected no ingestion for unauthenticated delivery")
	}
}

func TestPipeline_MissingSignatureIsUnauthorized(t *testing.T) {
	pipeline := newTestPipeline(t, newMemoryIngestionStore(), PipelineConfig{})
	req := signedRequest([]byte(`{"id": 123}`), testSecret)
	req.Header.Del(HeaderHMAC)
	receipt, _ := pipeline.Receive(context.Background(), req)
	if receipt.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", receipt.StatusCode)
	}
}

func TestPipeline_MalformedBodyAfterAuthenticationIsBadRequest(t *testing.T) {
	store := newMemoryIngestionStore()
	pipeline := newTestPipeline(t, store, PipelineConfig{})

	receipt, err := pipeline.Receive(context.Background(), signedRequest([]byte(`{"id": 12`), testSecret))
	if !core.IsTextCode(err, core.ErrorMalformedPayload) {
		t.Fatalf("expected malformed payload, got %v", err)
	}
	if receipt.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", receipt.StatusCode)
	}
	if store.calls != 0 {
		t.Fatalf("expected no ingestion for malformed body")
	}
}

func TestPipeline_OversizedBodyIsRejected(t *testing.T) {
	pipeline := newTestPipeline(t, newMemoryIngestionStore(), PipelineConfig{MaxBodyBytes: 8})
	receipt, err := pipeline.Receive(context.Background(), signedRequest([]byte(`{"id": 123456789}`), testSecret))
	if !core.IsTextCode(err, core.ErrorBodyTooLarge) {
		t.Fatalf("expected body too large, got %v", err)
	}
	if receipt.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", receipt.StatusCode)
	}
}

func TestPipeline_StoreUnavailableStillAcknowledges(t *testing.T) {
	store := newMemoryIngestionStore()
	store.err = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	dispatcher := &recordingDispatcher{}
	pipeline := newTestPipeline(t, store, PipelineConfig{}, WithDispatcher(dispatcher))

	receipt, err := pipeline.Receive(context.Background(), signedRequest([]byte(`{"id": 123}`), testSecret))
	if err != nil {
		t.Fatalf("expected degraded success, got %v", err)
	}
	if receipt.StatusCode != http.StatusOK || !receipt.Degraded {
		t.Fatalf("expected 200 degraded, got %+v", receipt)
	}
	pipeline.Dispatch(context.Background(), receipt)
	if len(dispatcher.events) != 0 {
		t.Fatalf("expected no dispatch when ingestion degraded")
	}
}

func TestPipeline_DispatchFailureIsOnlyLogged(t *testing.T) {
	dispatcher := &recordingDispatcher{err: errors.New("queue full")}
	pipeline := newTestPipeline(t, newMemoryIngestionStore(), PipelineConfig{}, WithDispatcher(dispatcher))

	receipt, err := pipeline.Receive(context.Background(), signedRequest([]byte(`{"id": 77}`), testSecret))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	pipeline.Dispatch(context.Background(), receipt)
	if len(dispatcher.events) != 1 || dispatcher.events[0].EventID != "77" {
		t.Fatalf("expected one dispatched event, got %+v", dispatcher.events)
	}
	if receipt.StatusCode != http.StatusOK {
		t.Fatalf("dispatch must not change the decided status")
	}
}

func TestPipeline_ReplayWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pipeline := newTestPipeline(t, newMemoryIngestionStore(), PipelineConfig{ReplayWindow: 5 * time.Minute},
		WithClock(func() time.Time { return now }))

	stale := signedRequest([]byte(`{"id": 1}`), testSecret)
	stale.Header.Set(HeaderTriggeredAt, now.Add(-10*time.Minute).Format(time.RFC3339Nano))
	receipt, _ := pipeline.Receive(context.Background(), stale)
	if receipt.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected stale delivery to be rejected, got %d", receipt.StatusCode)
	}

	fresh := signedRequest([]byte(`{"id": 2}`), testSecret)
	fresh.Header.Set(HeaderTriggeredAt, now.Add(-time.Minute).Format(time.RFC3339Nano))
	receipt, err := pipeline.Receive(context.Background(), fresh)
	if err != nil || receipt.StatusCode != http.StatusOK {
		t.Fatalf("expected fresh delivery accepted, got %d %v", receipt.StatusCode, err)
	}

	untimed := signedRequest([]byte(`{"id": 3}`), testSecret)
	if receipt, _ := pipeline.Receive(context.Background(), untimed); receipt.StatusCode != http.StatusOK {
		t.Fatalf("expected delivery without trigger time accepted, got %d", receipt.StatusCode)
	}
}

func TestPipeline_MissingEventIDAllowedIsStoredWithoutDispatch(t *testing.T) {
	store := newMemoryIngestionStore()
	dispatcher := &recordingDispatcher{}
	pipeline := newTestPipeline(t, store, PipelineConfig{AllowMissingEventID: true}, WithDispatcher(dispatcher))

	receipt, err := pipeline.Receive(context.Background(), signedRequest([]byte(`{"email":"jon@example.com"}`), testSecret))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if receipt.StatusCode != http.StatusOK || receipt.ShouldDispatch() {
		t.Fatalf("expected 200 without dispatch, got %+v", receipt)
	}
	if store.calls != 1 {
		t.Fatalf("expected record to be stored")
	}
}

func TestPipeline_VerificationOnlyMode(t *testing.T) {
	store := core.NewLedgerIngestionStore(nil, time.Hour)
	pipeline := newTestPipeline(t, store, PipelineConfig{})
	body := []byte(`{"id": 123}`)

	first, _ := pipeline.Receive(context.Background(), signedRequest(body, testSecret))
	second, _ := pipeline.Receive(context.Background(), signedRequest(body, testSecret))
	if first.StatusCode != http.StatusOK || first.Outcome != core.IngestOutcomeSkipped {
		t.Fatalf("expected skipped first delivery, got %+v", first)
	}
	if second.Outcome != core.IngestOutcomeAlreadyPresent {
		t.Fatalf("expected ledger to report duplicate, got %+v", second)
	}
	if first.ShouldDispatch() {
		t.Fatalf("expected no dispatch in verification-only mode")
	}
}
