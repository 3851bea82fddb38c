package core

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type SecretEncoding string

const (
	SecretEncodingText SecretEncoding = "text"
	SecretEncodingHex  SecretEncoding = "hex"
)

const (
	DefaultWebhookRoute       = "/webhooks/shopify/orders-paid"
	DefaultOriginLabel        = "shopify"
	DefaultMaxBodyBytes int64 = 1 << 20
)

type ServerConfig struct {
	Port            int           `koanf:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type WebhookConfig struct {
	Secret              string         `koanf:"secret" mapstructure:"secret"`
	SecretEncoding      SecretEncoding `koanf:"secret_encoding" mapstructure:"secret_encoding"`
	Route               string         `koanf:"route" mapstructure:"route"`
	OriginLabel         string         `koanf:"origin_label" mapstructure:"origin_label"`
	MaxBodyBytes        int64          `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
	ReplayWindow        time.Duration  `koanf:"replay_window" mapstructure:"replay_window"`
	AllowMissingEventID bool           `koanf:"allow_missing_event_id" mapstructure:"allow_missing_event_id"`
}

// StorageConfig is optional. An empty URL runs the receiver in
// verification-only mode.
type StorageConfig struct {
	Driver      string        `koanf:"driver" mapstructure:"driver"`
	URL         string        `koanf:"url" mapstructure:"url"`
	Debug       bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
}

type ShopifyConfig struct {
	ShopDomain  string `koanf:"shop_domain" mapstructure:"shop_domain"`
	AccessToken string `koanf:"access_token" mapstructure:"access_token"`
	APIVersion  string `koanf:"api_version" mapstructure:"api_version"`
}

type EffectsConfig struct {
	Enabled            bool          `koanf:"enabled" mapstructure:"enabled"`
	Timeout            time.Duration `koanf:"timeout" mapstructure:"timeout"`
	Workers            int           `koanf:"workers" mapstructure:"workers"`
	QueueSize          int           `koanf:"queue_size" mapstructure:"queue_size"`
	MetafieldNamespace string        `koanf:"metafield_namespace" mapstructure:"metafield_namespace"`
	MetafieldKey       string        `koanf:"metafield_key" mapstructure:"metafield_key"`
	CodePrefix         string        `koanf:"code_prefix" mapstructure:"code_prefix"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" mapstructure:"level"`
	Format string `koanf:"format" mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled" mapstructure:"enabled"`
	Path    string `koanf:"path" mapstructure:"path"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	Server      ServerConfig  `koanf:"server" mapstructure:"server"`
	Webhook     WebhookConfig `koanf:"webhook" mapstructure:"webhook"`
	Storage     StorageConfig `koanf:"storage" mapstructure:"storage"`
	Shopify     ShopifyConfig `koanf:"shopify" mapstructure:"shopify"`
	Effects     EffectsConfig `koanf:"effects" mapstructure:"effects"`
	Logging     LoggingConfig `koanf:"logging" mapstructure:"logging"`
	Metrics     MetricsConfig `koanf:"metrics" mapstructure:"metrics"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "webhookd",
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Webhook: WebhookConfig{
			SecretEncoding: SecretEncodingText,
			Route:          DefaultWebhookRoute,
			OriginLabel:    DefaultOriginLabel,
			MaxBodyBytes:   DefaultMaxBodyBytes,
		},
		Storage: StorageConfig{
			Driver:      "postgres",
			PingTimeout: 5 * time.Second,
		},
		Shopify: ShopifyConfig{
			APIVersion: "2024-10",
		},
		Effects: EffectsConfig{
			Enabled:            true,
			Timeout:            10 * time.Second,
			Workers:            2,
			QueueSize:          256,
			MetafieldNamespace: "custom",
			MetafieldKey:       "voucher_code",
			CodePrefix:         "RE4-",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Webhook.Secret) == "" {
		return fmt.Errorf("core: webhook secret is required")
	}
	if _, err := c.Webhook.SecretKey(); err != nil {
		return err
	}
	route := strings.TrimSpace(c.Webhook.Route)
	if route == "" || !strings.HasPrefix(route, "/") {
		return fmt.Errorf("core: webhook route must start with /")
	}
	if strings.TrimSpace(c.Webhook.OriginLabel) == "" {
		return fmt.Errorf("core: webhook origin_label is required")
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		return fmt.Errorf("core: webhook max_body_bytes must be positive")
	}
	if c.Webhook.ReplayWindow < 0 {
		return fmt.Errorf("core: webhook replay_window must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("core: server port %d out of range", c.Server.Port)
	}
	if c.StorageEnabled() {
		if err := c.validateDriver(); err != nil {
			return err
		}
	}
	if c.EffectsEnabled() {
		if c.Effects.Timeout <= 0 {
			return fmt.Errorf("core: effects timeout must be positive")
		}
		if c.Effects.Workers <= 0 {
			return fmt.Errorf("core: effects workers must be positive")
		}
		if c.Effects.QueueSize <= 0 {
			return fmt.Errorf("core: effects queue_size must be positive")
		}
		if strings.TrimSpace(c.Effects.MetafieldNamespace) == "" || strings.TrimSpace(c.Effects.MetafieldKey) == "" {
			return fmt.Errorf("core: effects metafield namespace and key are required")
		}
	}
	return nil
}

// ValidateStorage checks only what commands that talk to the database need.
func (c Config) ValidateStorage() error {
	if !c.StorageEnabled() {
		return fmt.Errorf("core: storage url is required")
	}
	return c.validateDriver()
}

func (c Config) validateDriver() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "postgres", "sqlite3":
		return nil
	default:
		return fmt.Errorf("core: unsupported storage driver %q", c.Storage.Driver)
	}
}

func (c Config) StorageEnabled() bool {
	return strings.TrimSpace(c.Storage.URL) != ""
}

// EffectsEnabled reports whether the downstream write can run. It needs
// persistent storage for derived value reuse and Shopify credentials.
func (c Config) EffectsEnabled() bool {
	return c.Effects.Enabled &&
		c.StorageEnabled() &&
		strings.TrimSpace(c.Shopify.ShopDomain) != "" &&
		strings.TrimSpace(c.Shopify.AccessToken) != ""
}

// SecretKey decodes the shared secret according to SecretEncoding.
func (w WebhookConfig) SecretKey() ([]byte, error) {
	secret := w.Secret
	switch SecretEncoding(strings.ToLower(strings.TrimSpace(string(w.SecretEncoding)))) {
	case "", SecretEncodingText:
		return []byte(secret), nil
	case SecretEncodingHex:
		key, err := hex.DecodeString(strings.TrimSpace(secret))
		if err != nil {
			return nil, fmt.Errorf("core: webhook secret is not valid hex: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("core: unsupported webhook secret encoding %q", w.SecretEncoding)
	}
}
