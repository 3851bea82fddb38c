package inbound_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/inbound"
	ingestmigrations "github.com/goliatone/go-webhook-ingest/migrations"
	sqlstore "github.com/goliatone/go-webhook-ingest/store/sql"
	"github.com/goliatone/go-webhook-ingest/webhooks"
	_ "github.com/mattn/go-sqlite3"
)

const (
	testSecret = "topsecret"
	testRoute  = core.DefaultWebhookRoute
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []core.VerifiedEvent
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ string, event core.VerifiedEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

type harness struct {
	router     *gin.Engine
	store      *sqlstore.IngestionStore
	dispatcher *recordingDispatcher
	closeDB    func()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	client, err := sqlstore.OpenClient(sqlstore.ClientConfig{
		Storage: core.StorageConfig{
			Driver: "sqlite3",
			URL:    fmt.Sprintf("file:inbound-e2e-%d?mode=memory&cache=shared", time.Now().UnixNano()),
		},
		ServiceName: "inbound-e2e",
	})
	if err != nil {
		t.Fatalf("open client: %v", err)
	}
	if err := ingestmigrations.Apply(ctx, client, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	verifier, err := webhooks.NewHMACVerifier(testSecret, core.SecretEncodingText)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	dispatcher := &recordingDispatcher{}
	pipeline, err := webhooks.NewPipeline(verifier, factory.IngestionStore(), webhooks.PipelineConfig{
		Origin: "shopify",
		Routes: []string{testRoute},
	}, webhooks.WithDispatcher(dispatcher))
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	handler := inbound.NewHandler(pipeline, factory.IngestionStore(), core.NewObserver(nil, nil))
	closed := false
	closeDB := func() {
		if !closed {
			closed = true
			_ = client.Close()
		}
	}
	t.Cleanup(closeDB)
	return &harness{
		router:     inbound.NewRouter(handler, inbound.RouterConfig{Routes: []string{testRoute}}),
		store:      factory.IngestionStore(),
		dispatcher: dispatcher,
		closeDB:    closeDB,
	}
}

func (h *harness) post(body string, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, testRoute, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(webhooks.HeaderHMAC, signature)
	}
	req.Header.Set(webhooks.HeaderTopic, "orders/paid")
	req.Header.Set(webhooks.HeaderShopDomain, "example.myshopify.com")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) storedCount(t *testing.T) int {
	t.Helper()
	records, err := h.store.ListSince(context.Background(), time.Time{}, 100)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	return len(records)
}

func sign(secret string, body string) string {
	return webhooks.Sign([]byte(secret), []byte(body))
}

func TestScenarioA_SignedBodyIsStored(t *testing.T) {
	h := newHarness(t)
	body := `{"id": 123}`

	rec := h.post(body, sign(testSecret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	record, err := h.store.Get(context.Background(), "shopify", "123")
	if err != nil {
		t.Fatalf("expected stored record: %v", err)
	}
	if string(record.Payload) == "" || record.Topic != "orders/paid" {
		t.Fatalf("unexpected stored record %+v", record)
	}
	if h.dispatcher.count() != 1 {
		t.Fatalf("expected one dispatch, got %d", h.dispatcher.count())
	}
}

func TestScenarioB_ReplayDoesNotStoreTwice(t *testing.T) {
	h := newHarness(t)
	body := `{"id": 123}`
	signature := sign(testSecret, body)

	for attempt := 0; attempt < 2; attempt++ {
		if rec := h.post(body, signature); rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", attempt, rec.Code)
		}
	}
	if got := h.storedCount(t); got != 1 {
		t.Fatalf("expected one stored record, got %d", got)
	}
}

func TestScenarioC_WrongSecretIsRejected(t *testing.T) {
	h := newHarness(t)
	body := `{"id": 123}`

	rec := h.post(body, sign("othersecret", body))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Body.String() != "unauthorized" {
		t.Fatalf("expected generic body, got %q", rec.Body.String())
	}
	if got := h.storedCount(t); got != 0 {
		t.Fatalf("expected nothing stored, got %d", got)
	}
	if h.dispatcher.count() != 0 {
		t.Fatalf("expected no dispatch")
	}

	if rec := h.post(body, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected missing signature to be 401, got %d", rec.Code)
	}
}

func TestScenarioD_TruncatedJSONIsBadRequest(t *testing.T) {
	h := newHarness(t)
	body := `{"id": 123`

	rec := h.post(body, sign(testSecret, body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := h.storedCount(t); got != 0 {
		t.Fatalf("expected nothing stored, got %d", got)
	}
}

func TestScenarioE_StoreUnavailableStillAcknowledges(t *testing.T) {
	h := newHarness(t)
	h.closeDB()
	body := `{"id": 123}`

	rec := h.post(body, sign(testSecret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with degraded storage, got %d", rec.Code)
	}
	if h.dispatcher.count() != 0 {
		t.Fatalf("expected no dispatch for unrecorded event")
	}

	if rec := h.post(body, sign("othersecret", body)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected authentication to hold while degraded, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	ready := httptest.NewRecorder()
	h.router.ServeHTTP(ready, req)
	if ready.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected readyz to report the store, got %d", ready.Code)
	}
}
