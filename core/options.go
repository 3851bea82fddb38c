package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"github.com/joho/godotenv"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// EnvConfigLoader reads configuration from the process environment. Values in
// DotenvFiles fill keys the environment does not set.
type EnvConfigLoader struct {
	DotenvFiles []string
	LookupEnv   func(key string) (string, bool)
}

func NewEnvConfigLoader(dotenvFiles ...string) *EnvConfigLoader {
	return &EnvConfigLoader{
		DotenvFiles: append([]string(nil), dotenvFiles...),
		LookupEnv:   os.LookupEnv,
	}
}

type envBinding struct {
	key     string
	section string
	field   string
	parse   func(string) (any, error)
}

var envBindings = []envBinding{
	{key: "SHOPIFY_WEBHOOK_SECRET", section: "webhook", field: "secret"},
	{key: "WEBHOOK_SECRET_ENCODING", section: "webhook", field: "secret_encoding", parse: parseLower},
	{key: "WEBHOOK_ROUTE", section: "webhook", field: "route"},
	{key: "ORIGIN_LABEL", section: "webhook", field: "origin_label"},
	{key: "WEBHOOK_MAX_BODY_BYTES", section: "webhook", field: "max_body_bytes", parse: parseInt64},
	{key: "WEBHOOK_REPLAY_WINDOW", section: "webhook", field: "replay_window", parse: parseDuration},
	{key: "WEBHOOK_ALLOW_MISSING_EVENT_ID", section: "webhook", field: "allow_missing_event_id", parse: parseBool},
	{key: "PORT", section: "server", field: "port", parse: parseInt},
	{key: "SHUTDOWN_TIMEOUT", section: "server", field: "shutdown_timeout", parse: parseDuration},
	{key: "DATABASE_URL", section: "storage", field: "url"},
	{key: "DATABASE_DRIVER", section: "storage", field: "driver", parse: parseLower},
	{key: "DATABASE_DEBUG", section: "storage", field: "debug", parse: parseBool},
	{key: "SHOPIFY_SHOP_DOMAIN", section: "shopify", field: "shop_domain"},
	{key: "SHOPIFY_ADMIN_ACCESS_TOKEN", section: "shopify", field: "access_token"},
	{key: "SHOPIFY_API_VERSION", section: "shopify", field: "api_version"},
	{key: "EFFECTS_ENABLED", section: "effects", field: "enabled", parse: parseBool},
	{key: "EFFECTS_TIMEOUT", section: "effects", field: "timeout", parse: parseDuration},
	{key: "EFFECTS_WORKERS", section: "effects", field: "workers", parse: parseInt},
	{key: "EFFECTS_QUEUE_SIZE", section: "effects", field: "queue_size", parse: parseInt},
	{key: "VOUCHER_METAFIELD_NAMESPACE", section: "effects", field: "metafield_namespace"},
	{key: "VOUCHER_METAFIELD_KEY", section: "effects", field: "metafield_key"},
	{key: "VOUCHER_CODE_PREFIX", section: "effects", field: "code_prefix"},
	{key: "LOG_LEVEL", section: "logging", field: "level", parse: parseLower},
	{key: "LOG_FORMAT", section: "logging", field: "format", parse: parseLower},
	{key: "METRICS_ENABLED", section: "metrics", field: "enabled", parse: parseBool},
	{key: "METRICS_PATH", section: "metrics", field: "path"},
}

func (l *EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := os.LookupEnv
	var files []string
	if l != nil {
		if l.LookupEnv != nil {
			lookup = l.LookupEnv
		}
		files = l.DotenvFiles
	}

	dotenv := map[string]string{}
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("core: read dotenv %q: %w", file, err)
		}
		for key, value := range values {
			if _, exists := dotenv[key]; !exists {
				dotenv[key] = value
			}
		}
	}

	raw := map[string]any{}
	for _, binding := range envBindings {
		value, ok := lookup(binding.key)
		if !ok {
			value, ok = dotenv[binding.key]
		}
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		var parsed any = value
		if binding.parse != nil {
			var err error
			parsed, err = binding.parse(value)
			if err != nil {
				return nil, fmt.Errorf("core: invalid %s: %w", binding.key, err)
			}
		}
		section, _ := raw[binding.section].(map[string]any)
		if section == nil {
			section = map[string]any{}
			raw[binding.section] = section
		}
		section[binding.field] = parsed
	}
	return raw, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	// validation runs once every layer is merged
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges the config layers. Validator defaults to
// Config.Validate.
type GoOptionsResolver struct {
	Validator func(Config) error
}

func (r GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	// providers apply defaults, so the loaded layer is complete
	loadedLayer := configToLayerMap(loaded, true)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("env", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("env"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	validate := r.Validator
	if validate == nil {
		validate = Config.Validate
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config](func(cfg *Config) error { return validate(*cfg) }),
	)
	if err != nil {
		return Config{}, err
	}
	if err := validate(resolved); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig resolves defaults, provider values and runtime overrides into a
// validated Config.
func LoadConfig(ctx context.Context, provider ConfigProvider, runtime Config) (Config, error) {
	return loadConfig(ctx, provider, runtime, GoOptionsResolver{})
}

// LoadStorageConfig resolves the same layers but only checks the storage
// section. Maintenance commands use it where no webhook secret is needed.
func LoadStorageConfig(ctx context.Context, provider ConfigProvider, runtime Config) (Config, error) {
	return loadConfig(ctx, provider, runtime, GoOptionsResolver{Validator: Config.ValidateStorage})
}

func loadConfig(ctx context.Context, provider ConfigProvider, runtime Config, resolver GoOptionsResolver) (Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(NewEnvConfigLoader(".env"))
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	server := map[string]any{}
	putInt(server, "port", cfg.Server.Port, includeZero)
	putDuration(server, "shutdown_timeout", cfg.Server.ShutdownTimeout, includeZero)
	putSection(layer, "server", server)

	webhook := map[string]any{}
	putString(webhook, "secret", cfg.Webhook.Secret, includeZero)
	putString(webhook, "secret_encoding", string(cfg.Webhook.SecretEncoding), includeZero)
	putString(webhook, "route", cfg.Webhook.Route, includeZero)
	putString(webhook, "origin_label", cfg.Webhook.OriginLabel, includeZero)
	if includeZero || cfg.Webhook.MaxBodyBytes != 0 {
		webhook["max_body_bytes"] = cfg.Webhook.MaxBodyBytes
	}
	putDuration(webhook, "replay_window", cfg.Webhook.ReplayWindow, includeZero)
	putBool(webhook, "allow_missing_event_id", cfg.Webhook.AllowMissingEventID, includeZero)
	putSection(layer, "webhook", webhook)

	storage := map[string]any{}
	putString(storage, "driver", cfg.Storage.Driver, includeZero)
	putString(storage, "url", cfg.Storage.URL, includeZero)
	putBool(storage, "debug", cfg.Storage.Debug, includeZero)
	putDuration(storage, "ping_timeout", cfg.Storage.PingTimeout, includeZero)
	putSection(layer, "storage", storage)

	shopify := map[string]any{}
	putString(shopify, "shop_domain", cfg.Shopify.ShopDomain, includeZero)
	putString(shopify, "access_token", cfg.Shopify.AccessToken, includeZero)
	putString(shopify, "api_version", cfg.Shopify.APIVersion, includeZero)
	putSection(layer, "shopify", shopify)

	effects := map[string]any{}
	putBool(effects, "enabled", cfg.Effects.Enabled, includeZero)
	putDuration(effects, "timeout", cfg.Effects.Timeout, includeZero)
	putInt(effects, "workers", cfg.Effects.Workers, includeZero)
	putInt(effects, "queue_size", cfg.Effects.QueueSize, includeZero)
	putString(effects, "metafield_namespace", cfg.Effects.MetafieldNamespace, includeZero)
	putString(effects, "metafield_key", cfg.Effects.MetafieldKey, includeZero)
	putString(effects, "code_prefix", cfg.Effects.CodePrefix, includeZero)
	putSection(layer, "effects", effects)

	logging := map[string]any{}
	putString(logging, "level", cfg.Logging.Level, includeZero)
	putString(logging, "format", cfg.Logging.Format, includeZero)
	putSection(layer, "logging", logging)

	metrics := map[string]any{}
	putBool(metrics, "enabled", cfg.Metrics.Enabled, includeZero)
	putString(metrics, "path", cfg.Metrics.Path, includeZero)
	putSection(layer, "metrics", metrics)

	return layer
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}

func putString(section map[string]any, key, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		section[key] = value
	}
}

func putInt(section map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		section[key] = value
	}
}

func putBool(section map[string]any, key string, value bool, includeZero bool) {
	// false cannot be told apart from unset in a zero-valued layer
	if includeZero || value {
		section[key] = value
	}
}

func putDuration(section map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		section[key] = value
	}
}

func parseLower(value string) (any, error) {
	return strings.ToLower(value), nil
}

func parseInt(value string) (any, error) {
	return strconv.Atoi(value)
}

func parseInt64(value string) (any, error) {
	return strconv.ParseInt(value, 10, 64)
}

func parseBool(value string) (any, error) {
	return strconv.ParseBool(value)
}

func parseDuration(value string) (any, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}
