package webhooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

// Event id candidates, in priority order.
var eventIDFields = []string{"id", "admin_graphql_api_id"}

const orderGIDPrefix = "gid://shopify/Order/"

// EventDecoder turns an authenticated body into a VerifiedEvent. It must only
// run after the signature verdict is valid.
type EventDecoder struct {
	// AllowMissingEventID accepts payloads without an id. Such events cannot
	// be deduplicated.
	AllowMissingEventID bool
	Now                 func() time.Time
}

func (d EventDecoder) Decode(n core.Notification) (core.VerifiedEvent, error) {
	decoder := json.NewDecoder(bytes.NewReader(n.RawBody))
	decoder.UseNumber()

	var document any
	if err := decoder.Decode(&document); err != nil {
		return core.VerifiedEvent{}, malformedPayload(err, "notification body is not valid JSON")
	}
	var trailing any
	if err := decoder.Decode(&trailing); !errors.Is(err, io.EOF) {
		return core.VerifiedEvent{}, malformedPayload(err, "notification body has trailing data")
	}

	fields, _ := document.(map[string]any)
	eventID := extractEventID(fields)
	if eventID == "" && !d.AllowMissingEventID {
		return core.VerifiedEvent{}, core.NewError(
			"notification payload has no event identifier",
			goerrors.CategoryBadInput,
			core.ErrorMalformedPayload,
		).WithMetadata(map[string]any{"candidates": eventIDFields})
	}

	return core.VerifiedEvent{
		EventID:    eventID,
		OwnerID:    extractOwnerID(fields),
		Topic:      strings.TrimSpace(n.Topic),
		ShopDomain: strings.TrimSpace(n.ShopDomain),
		WebhookID:  strings.TrimSpace(n.WebhookID),
		Payload:    json.RawMessage(append([]byte(nil), n.RawBody...)),
		Fields:     fields,
		ReceivedAt: d.now(),
	}, nil
}

func (d EventDecoder) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func extractEventID(fields map[string]any) string {
	for _, key := range eventIDFields {
		if value := canonicalID(fields[key]); value != "" {
			return value
		}
	}
	return ""
}

// extractOwnerID resolves the Admin API gid of the order the event is about.
func extractOwnerID(fields map[string]any) string {
	if gid := canonicalID(fields["admin_graphql_api_id"]); strings.HasPrefix(gid, "gid://") {
		return gid
	}
	if id := canonicalID(fields["id"]); id != "" {
		return orderGIDPrefix + id
	}
	return ""
}

func canonicalID(value any) string {
	switch typed := value.(type) {
	case json.Number:
		return strings.TrimSpace(typed.String())
	case string:
		return strings.TrimSpace(typed)
	default:
		return ""
	}
}

func malformedPayload(cause error, message string) error {
	if cause == nil {
		return core.NewError(message, goerrors.CategoryBadInput, core.ErrorMalformedPayload)
	}
	return core.WrapError(cause, goerrors.CategoryBadInput, core.ErrorMalformedPayload, message)
}
