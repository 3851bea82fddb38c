package shopify

import (
	"testing"
	"time"

	"github.com/goliatone/go-webhook-ingest/transport"
)

func TestNormalizeAdminAPIResponse_MapsShopifyHeaders(t *testing.T) {
	meta := NormalizeAdminAPIResponse(transport.Response{
		StatusCode: 200,
		Headers: map[string]string{
			"X-Shopify-Shop-Api-Call-Limit": "10/40",
			"X-Request-Id":                  "req_1",
			"X-Shopify-Api-Version":         "2024-10",
		},
	})

	if meta.CallLimit != 40 || meta.CallRemaining != 30 {
		t.Fatalf("expected 30 of 40 calls remaining, got %d of %d", meta.CallRemaining, meta.CallLimit)
	}
	fields := meta.Fields()
	if got := fields["shopify_request_id"]; got != "req_1" {
		t.Fatalf("expected request id metadata req_1, got %#v", got)
	}
	if got := fields["shopify_api_call_remaining"]; got != 30 {
		t.Fatalf("expected remaining metadata 30, got %#v", got)
	}
	if _, ok := fields["shopify_retry_after_seconds"]; ok {
		t.Fatalf("expected no retry metadata on success")
	}
}

func TestNormalizeAdminAPIResponse_MapsRetryMetadata(t *testing.T) {
	meta := NormalizeAdminAPIResponse(transport.Response{
		StatusCode: 429,
		Headers:    map[string]string{"Retry-After": "4"},
	})
	if meta.RetryAfter == nil || *meta.RetryAfter != 4*time.Second {
		t.Fatalf("expected retry-after 4s, got %#v", meta.RetryAfter)
	}
	if meta.RetryAfterSource != "header" {
		t.Fatalf("expected retry source header, got %q", meta.RetryAfterSource)
	}

	fallback := NormalizeAdminAPIResponse(transport.Response{
		StatusCode: 429,
		Body:       []byte(`{"errors":"Throttled"}`),
	})
	if fallback.RetryAfter == nil || *fallback.RetryAfter != defaultRetryAfter429 {
		t.Fatalf("expected default retry-after %s, got %#v", defaultRetryAfter429, fallback.RetryAfter)
	}
	if fallback.RetryAfterSource != "default" {
		t.Fatalf("expected retry source default, got %q", fallback.RetryAfterSource)
	}
	if fallback.ErrorType != "throttle" {
		t.Fatalf("expected error type throttle, got %q", fallback.ErrorType)
	}
}

func TestResponseMeta_WithThrottleStatus(t *testing.T) {
	meta := NormalizeAdminAPIResponse(transport.Response{StatusCode: 200}).WithThrottleStatus(map[string]any{
		"cost": map[string]any{
			"throttleStatus": map[string]any{
				"maximumAvailable":   float64(2000),
				"currentlyAvailable": float64(1990),
				"restoreRate":        float64(100),
			},
		},
	})
	fields := meta.Fields()
	if fields["shopify_throttle_available"] != float64(1990) || fields["shopify_throttle_maximum"] != float64(2000) {
		t.Fatalf("expected throttle fields, got %#v", fields)
	}
	if meta.ThrottleRestore != 100 {
		t.Fatalf("expected restore rate 100, got %v", meta.ThrottleRestore)
	}
}
