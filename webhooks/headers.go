package webhooks

import (
	"net/http"
	"strings"
)

const (
	HeaderHMAC        = "X-Shopify-Hmac-Sha256"
	HeaderTopic       = "X-Shopify-Topic"
	HeaderShopDomain  = "X-Shopify-Shop-Domain"
	HeaderWebhookID   = "X-Shopify-Webhook-Id"
	HeaderTriggeredAt = "X-Shopify-Triggered-At"
)

func headerValue(headers http.Header, key string) string {
	if len(headers) == 0 {
		return ""
	}
	return strings.TrimSpace(headers.Get(key))
}
