package inbound

import (
	"net/http"

	"github.com/goliatone/go-webhook-ingest/core"
)

// publicBody is the only thing a sender learns about a rejection. Internal
// health, store state and verdict reasons stay in logs.
func publicBody(status int) string {
	switch status {
	case http.StatusOK:
		return "ok"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusMethodNotAllowed:
		return "method not allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload too large"
	case http.StatusUnsupportedMediaType:
		return "unsupported media type"
	case http.StatusNotFound:
		return "not found"
	default:
		return "internal error"
	}
}

// errorFields renders err for logs without the payload.
func errorFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	mapped := core.MapError(err)
	fields := map[string]any{
		"error":     mapped.Error(),
		"text_code": mapped.TextCode,
		"status":    mapped.Code,
	}
	for key, value := range mapped.Metadata {
		if _, exists := fields[key]; !exists {
			fields[key] = value
		}
	}
	return fields
}
