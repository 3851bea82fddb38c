package ingest

import (
	"context"

	"github.com/goliatone/go-webhook-ingest/core"
)

type Config = core.Config

type IngestionRecord = core.IngestionRecord

type VerifiedEvent = core.VerifiedEvent

type EffectRequest = core.EffectRequest

type EffectResult = core.EffectResult

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// LoadConfig reads the environment (and .env when present), then applies
// runtime overrides on top.
func LoadConfig(ctx context.Context, runtime Config, dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	provider := core.NewCfgxConfigProvider(core.NewEnvConfigLoader(dotenvFiles...))
	return core.LoadConfig(ctx, provider, runtime)
}

// LoadStorageConfig is LoadConfig for maintenance commands: only the storage
// section must be valid.
func LoadStorageConfig(ctx context.Context, runtime Config, dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	provider := core.NewCfgxConfigProvider(core.NewEnvConfigLoader(dotenvFiles...))
	return core.LoadStorageConfig(ctx, provider, runtime)
}
