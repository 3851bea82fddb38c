package shopify

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	ProviderID = "shopify"

	defaultDomainSuffix = ".myshopify.com"
	defaultAPIVersion   = "2024-10"
	defaultTimeout      = 10 * time.Second

	HeaderAccessToken = "X-Shopify-Access-Token"
)

// AdminConfig addresses the Admin GraphQL API of a single shop.
type AdminConfig struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
	// Endpoint overrides the derived graphql.json URL.
	Endpoint string
}

func (c AdminConfig) normalize() (AdminConfig, error) {
	domain, err := NormalizeShopDomain(c.ShopDomain)
	if err != nil {
		return AdminConfig{}, err
	}
	c.ShopDomain = domain
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	if c.AccessToken == "" {
		return AdminConfig{}, fmt.Errorf("providers/shopify: access token is required")
	}
	c.APIVersion = strings.TrimSpace(c.APIVersion)
	if c.APIVersion == "" {
		c.APIVersion = defaultAPIVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Endpoint == "" {
		c.Endpoint = AdminGraphQLEndpoint(c.ShopDomain, c.APIVersion)
	}
	return c, nil
}

func AdminGraphQLEndpoint(shopDomain string, apiVersion string) string {
	return (&url.URL{
		Scheme: "https",
		Host:   shopDomain,
		Path:   "/admin/api/" + strings.TrimSpace(apiVersion) + "/graphql.json",
	}).String()
}

// NormalizeShopDomain accepts a bare handle, a myshopify host or a URL and
// returns the lower case myshopify host.
func NormalizeShopDomain(value string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "", fmt.Errorf("providers/shopify: shop_domain is required")
	}
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", fmt.Errorf("providers/shopify: parse shop_domain: %w", err)
		}
		trimmed = strings.TrimSpace(strings.ToLower(parsed.Hostname()))
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("providers/shopify: invalid shop_domain")
	}
	if !strings.Contains(trimmed, ".") {
		trimmed += defaultDomainSuffix
	}
	if !strings.HasSuffix(trimmed, defaultDomainSuffix) {
		return "", fmt.Errorf("providers/shopify: shop_domain must end with %q", defaultDomainSuffix)
	}
	return trimmed, nil
}
