package shopify

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-ingest/ratelimit"
	"github.com/goliatone/go-webhook-ingest/transport"
)

const defaultRetryAfter429 = 2 * time.Second

// ResponseMeta is what an Admin API response says about the request and the
// remaining call budget.
type ResponseMeta struct {
	StatusCode        int
	RequestID         string
	APIVersion        string
	CallLimit         int
	CallRemaining     int
	RetryAfter        *time.Duration
	RetryAfterSource  string
	ErrorType         string
	ThrottleAvailable float64
	ThrottleRestore   float64
	ThrottleMaximum   float64
	hasCallLimit      bool
	hasThrottleStatus bool
}

func NormalizeAdminAPIResponse(response transport.Response) ResponseMeta {
	meta := ResponseMeta{
		StatusCode: response.StatusCode,
		RequestID:  headerValue(response.Headers, "x-request-id"),
		APIVersion: headerValue(response.Headers, "x-shopify-api-version"),
		ErrorType:  readErrorType(response.Body),
	}
	if used, limit, ok := parseShopifyCallLimit(headerValue(response.Headers, "x-shopify-shop-api-call-limit")); ok {
		meta.CallLimit = limit
		meta.CallRemaining = limit - used
		if meta.CallRemaining < 0 {
			meta.CallRemaining = 0
		}
		meta.hasCallLimit = true
	}
	if retryAfter, ok := parseRetryAfter(response.Headers); ok {
		meta.RetryAfter = &retryAfter
		meta.RetryAfterSource = "header"
	}
	if meta.StatusCode == 429 && meta.RetryAfter == nil {
		retryAfter := defaultRetryAfter429
		meta.RetryAfter = &retryAfter
		meta.RetryAfterSource = "default"
	}
	return meta
}

// WithThrottleStatus reads extensions.cost.throttleStatus from a GraphQL
// response.
func (m ResponseMeta) WithThrottleStatus(extensions map[string]any) ResponseMeta {
	cost, _ := extensions["cost"].(map[string]any)
	status, _ := cost["throttleStatus"].(map[string]any)
	if len(status) == 0 {
		return m
	}
	m.ThrottleMaximum, _ = status["maximumAvailable"].(float64)
	m.ThrottleAvailable, _ = status["currentlyAvailable"].(float64)
	m.ThrottleRestore, _ = status["restoreRate"].(float64)
	m.hasThrottleStatus = true
	return m
}

// Observation reduces the meta to the budget view used by the throttle
// policy. The GraphQL cost bucket wins over the REST call limit header.
func (m ResponseMeta) Observation() ratelimit.Observation {
	obs := ratelimit.Observation{
		StatusCode: m.StatusCode,
		RetryAfter: m.RetryAfter,
	}
	switch {
	case m.hasThrottleStatus:
		obs.Limit = int(m.ThrottleMaximum)
		obs.Remaining = int(m.ThrottleAvailable)
		obs.HasBudget = true
	case m.hasCallLimit:
		obs.Limit = m.CallLimit
		obs.Remaining = m.CallRemaining
		obs.HasBudget = true
	}
	return obs
}

// Fields renders the meta as log and error metadata.
func (m ResponseMeta) Fields() map[string]any {
	fields := map[string]any{}
	if m.StatusCode > 0 {
		fields["shopify_status_code"] = m.StatusCode
	}
	if m.RequestID != "" {
		fields["shopify_request_id"] = m.RequestID
	}
	if m.APIVersion != "" {
		fields["shopify_api_version"] = m.APIVersion
	}
	if m.hasCallLimit {
		fields["shopify_api_call_limit"] = m.CallLimit
		fields["shopify_api_call_remaining"] = m.CallRemaining
	}
	if m.RetryAfter != nil {
		fields["shopify_retry_after_seconds"] = int64(m.RetryAfter.Seconds())
		fields["shopify_retry_after_source"] = m.RetryAfterSource
	}
	if m.ErrorType != "" {
		fields["shopify_error_type"] = m.ErrorType
	}
	if m.hasThrottleStatus {
		fields["shopify_throttle_available"] = m.ThrottleAvailable
		fields["shopify_throttle_maximum"] = m.ThrottleMaximum
	}
	return fields
}

func parseShopifyCallLimit(value string) (used int, limit int, ok bool) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	used, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || used < 0 {
		return 0, 0, false
	}
	limit, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || limit <= 0 {
		return 0, 0, false
	}
	return used, limit, true
}

func parseRetryAfter(headers map[string]string) (time.Duration, bool) {
	raw := headerValue(headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func readErrorType(body []byte) string {
	lowered := strings.ToLower(strings.TrimSpace(string(body)))
	switch {
	case lowered == "":
		return ""
	case strings.Contains(lowered, "throttle"):
		return "throttle"
	case strings.Contains(lowered, "rate"):
		return "rate_limit"
	default:
		return ""
	}
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
