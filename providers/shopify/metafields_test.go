package shopify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/ratelimit"
)

type capturedCall struct {
	Token     string
	Operation string
	Variables map[string]any
}

func newAdminServer(t *testing.T, response string, status int) (*httptest.Server, *[]capturedCall) {
	t.Helper()
	var mu sync.Mutex
	calls := []capturedCall{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Query         string         `json:"query"`
			OperationName string         `json:"operationName"`
			Variables     map[string]any `json:"variables"`
		}
		_ = json.Unmarshal(body, &payload)
		mu.Lock()
		calls = append(calls, capturedCall{
			Token:     r.Header.Get(HeaderAccessToken),
			Operation: payload.OperationName,
			Variables: payload.Variables,
		})
		mu.Unlock()
		w.Header().Set("X-Request-Id", "req-42")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestWriter(t *testing.T, server *httptest.Server) *MetafieldWriter {
	t.Helper()
	writer, err := NewMetafieldWriter(AdminConfig{
		ShopDomain:  "example",
		AccessToken: "shpat_test",
		Endpoint:    server.URL,
	}, server.Client())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	return writer
}

func voucherInput() core.MetafieldInput {
	return core.MetafieldInput{
		ShopDomain: "example.myshopify.com",
		OwnerID:    "gid://shopify/Order/820982911946154508",
		Namespace:  "custom",
		Key:        "voucher_code",
		Type:       core.MetafieldTypeSingleLineText,
		Value:      "RE4-ABCD-EF01-2345",
	}
}

func TestMetafieldWriter_SetsMetafield(t *testing.T) {
	server, calls := newAdminServer(t, `{"data":{"metafieldsSet":{"metafields":[{"id":"gid://shopify/Metafield/1","namespace":"custom","key":"voucher_code","value":"RE4-ABCD-EF01-2345"}],"userErrors":[]}}}`, http.StatusOK)
	writer := newTestWriter(t, server)

	if err := writer.SetMetafield(context.Background(), voucherInput()); err != nil {
		t.Fatalf("set metafield: %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected one call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.Token != "shpat_test" {
		t.Fatalf("expected access token header, got %q", call.Token)
	}
	if call.Operation != "MetafieldsSet" {
		t.Fatalf("expected MetafieldsSet operation, got %q", call.Operation)
	}
	metafields, _ := call.Variables["metafields"].([]any)
	if len(metafields) != 1 {
		t.Fatalf("expected one metafield input, got %#v", call.Variables)
	}
	entry, _ := metafields[0].(map[string]any)
	if entry["ownerId"] != "gid://shopify/Order/820982911946154508" || entry["value"] != "RE4-ABCD-EF01-2345" {
		t.Fatalf("unexpected metafield input %#v", entry)
	}
	if entry["type"] != core.MetafieldTypeSingleLineText {
		t.Fatalf("expected single line text type, got %#v", entry["type"])
	}
}

func TestMetafieldWriter_UserErrorsFail(t *testing.T) {
	server, _ := newAdminServer(t, `{"data":{"metafieldsSet":{"metafields":[],"userErrors":[{"field":["metafields","0","value"],"message":"is too long","code":"INVALID_VALUE"}]}}}`, http.StatusOK)
	writer := newTestWriter(t, server)

	err := writer.SetMetafield(context.Background(), voucherInput())
	if !core.IsTextCode(err, core.ErrorDownstreamWriteFailed) {
		t.Fatalf("expected downstream failure, got %v", err)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T", err)
	}
	messages, _ := rich.Metadata["user_errors"].([]string)
	if len(messages) != 1 || !strings.Contains(messages[0], "INVALID_VALUE") {
		t.Fatalf("expected user errors to be reported, got %#v", rich.Metadata)
	}
}

func TestMetafieldWriter_HTTPFailureCarriesShopifyMetadata(t *testing.T) {
	server, _ := newAdminServer(t, `{"errors":"Throttled"}`, http.StatusTooManyRequests)
	writer := newTestWriter(t, server)

	err := writer.SetMetafield(context.Background(), voucherInput())
	if !core.IsTextCode(err, core.ErrorDownstreamWriteFailed) {
		t.Fatalf("expected downstream failure, got %v", err)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if rich.Metadata["shopify_request_id"] != "req-42" {
		t.Fatalf("expected request id metadata, got %#v", rich.Metadata)
	}
	if rich.Metadata["shopify_retry_after_source"] != "default" {
		t.Fatalf("expected default retry metadata, got %#v", rich.Metadata)
	}
}

func TestMetafieldWriter_ThrottledShopSkipsCalls(t *testing.T) {
	server, calls := newAdminServer(t, `{"errors":"Throttled"}`, http.StatusTooManyRequests)
	writer := newTestWriter(t, server).WithThrottle(ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore()))

	if err := writer.SetMetafield(context.Background(), voucherInput()); !core.IsTextCode(err, core.ErrorDownstreamWriteFailed) {
		t.Fatalf("expected first call to fail downstream, got %v", err)
	}
	err := writer.SetMetafield(context.Background(), voucherInput())
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryRateLimit {
		t.Fatalf("expected local throttle error, got %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected throttled call to stay local, got %d calls", len(*calls))
	}
}

func TestResponseMeta_ObservationPrefersGraphQLCost(t *testing.T) {
	meta := ResponseMeta{StatusCode: 200, CallLimit: 40, CallRemaining: 30, hasCallLimit: true}.
		WithThrottleStatus(map[string]any{"cost": map[string]any{"throttleStatus": map[string]any{
			"maximumAvailable":   2000.0,
			"currentlyAvailable": 1990.0,
			"restoreRate":        100.0,
		}}})
	obs := meta.Observation()
	if !obs.HasBudget || obs.Limit != 2000 || obs.Remaining != 1990 {
		t.Fatalf("expected graphql cost budget, got %+v", obs)
	}
}

func TestMetafieldWriter_RejectsInvalidInputWithoutCalling(t *testing.T) {
	server, calls := newAdminServer(t, `{}`, http.StatusOK)
	writer := newTestWriter(t, server)

	input := voucherInput()
	input.OwnerID = "820982911946154508"
	if err := writer.SetMetafield(context.Background(), input); err == nil {
		t.Fatalf("expected invalid owner id to fail")
	}

	input = voucherInput()
	input.ShopDomain = "other-shop.myshopify.com"
	if err := writer.SetMetafield(context.Background(), input); err == nil {
		t.Fatalf("expected foreign shop to fail")
	}
	if len(*calls) != 0 {
		t.Fatalf("expected no downstream calls, got %d", len(*calls))
	}
}

func TestNewMetafieldWriter_DerivesEndpoint(t *testing.T) {
	writer, err := NewMetafieldWriter(AdminConfig{ShopDomain: "https://Example.myshopify.com/", AccessToken: "t"}, nil)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if got := writer.Endpoint(); got != "https://example.myshopify.com/admin/api/2024-10/graphql.json" {
		t.Fatalf("unexpected endpoint %q", got)
	}

	if _, err := NewMetafieldWriter(AdminConfig{ShopDomain: "example"}, nil); err == nil {
		t.Fatalf("expected missing token to fail")
	}
	if _, err := NewMetafieldWriter(AdminConfig{ShopDomain: "example.com", AccessToken: "t"}, nil); err == nil {
		t.Fatalf("expected non myshopify domain to fail")
	}
}
