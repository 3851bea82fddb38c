package webhooks

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
}

func TestEventDecoder_NumericIDKeepsExactForm(t *testing.T) {
	decoder := EventDecoder{Now: fixedClock}
	event, err := decoder.Decode(core.Notification{
		RawBody:    []byte(`{"id": 820982911946154508, "total_price": "10.00"}`),
		Topic:      "orders/paid",
		ShopDomain: "example.myshopify.com",
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.EventID != "820982911946154508" {
		t.Fatalf("expected exact numeric id, got %q", event.EventID)
	}
	if event.OwnerID != "gid://shopify/Order/820982911946154508" {
		t.Fatalf("expected order gid, got %q", event.OwnerID)
	}
	if !event.ReceivedAt.Equal(fixedClock()) {
		t.Fatalf("expected receivedAt from clock, got %s", event.ReceivedAt)
	}
	if event.Topic != "orders/paid" || event.ShopDomain != "example.myshopify.com" {
		t.Fatalf("expected header metadata to be carried, got %+v", event)
	}
	if string(event.Payload) != `{"id": 820982911946154508, "total_price": "10.00"}` {
		t.Fatalf("expected verbatim payload, got %s", event.Payload)
	}
	if _, ok := event.Fields["total_price"]; !ok {
		t.Fatalf("expected decoded fields")
	}
}

func TestEventDecoder_IDPriority(t *testing.T) {
	decoder := EventDecoder{}
	event, err := decoder.Decode(core.Notification{
		RawBody: []byte(`{"admin_graphql_api_id":"gid://shopify/Order/9","id":"9"}`),
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.EventID != "9" {
		t.Fatalf("expected id to win over alias, got %q", event.EventID)
	}
	if event.OwnerID != "gid://shopify/Order/9" {
		t.Fatalf("expected gid owner, got %q", event.OwnerID)
	}

	event, err = decoder.Decode(core.Notification{
		RawBody: []byte(`{"admin_graphql_api_id":"gid://shopify/Order/10"}`),
	})
	if err != nil {
		t.Fatalf("decode alias: %v", err)
	}
	if event.EventID != "gid://shopify/Order/10" {
		t.Fatalf("expected alias id, got %q", event.EventID)
	}
}

func TestEventDecoder_MissingIDRejectedByDefault(t *testing.T) {
	_, err := EventDecoder{}.Decode(core.Notification{RawBody: []byte(`{"email":"jon@example.com"}`)})
	if !core.IsTextCode(err, core.ErrorMalformedPayload) {
		t.Fatalf("expected malformed payload for missing id, got %v", err)
	}
	if core.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", core.StatusCode(err))
	}
}

func TestEventDecoder_MissingIDAllowedYieldsEmptyID(t *testing.T) {
	event, err := EventDecoder{AllowMissingEventID: true}.Decode(core.Notification{RawBody: []byte(`[1,2,3]`)})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.EventID != "" || event.Deduplicable() {
		t.Fatalf("expected empty, non-deduplicable id, got %q", event.EventID)
	}
	if !json.Valid(event.Payload) {
		t.Fatalf("expected payload to be kept")
	}
}

func TestEventDecoder_MalformedBodies(t *testing.T) {
	for _, body := range []string{
		`{"id": 123`,
		``,
		`not json`,
		`{"id": 1} {"id": 2}`,
		`{"id": 1} trailing`,
	} {
		_, err := EventDecoder{}.Decode(core.Notification{RawBody: []byte(body)})
		if !core.IsTextCode(err, core.ErrorMalformedPayload) {
			t.Fatalf("expected %q to be malformed, got %v", body, err)
		}
		if core.IsTextCode(err, core.ErrorAuthenticationFailed) {
			t.Fatalf("malformed payload must not look like authentication failure")
		}
	}
}

func TestEventDecoder_NonScalarIDIgnored(t *testing.T) {
	_, err := EventDecoder{}.Decode(core.Notification{RawBody: []byte(`{"id":{"nested":1}}`)})
	if !core.IsTextCode(err, core.ErrorMalformedPayload) {
		t.Fatalf("expected object id to be treated as missing, got %v", err)
	}
}
