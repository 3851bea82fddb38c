package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// IngestionStore persists one record per (origin, event id). Inserting a
// duplicate reports IngestOutcomeAlreadyPresent, never an error.
type IngestionStore interface {
	Ingest(ctx context.Context, record IngestionRecord) (IngestOutcome, error)
	Get(ctx context.Context, origin string, eventID string) (IngestionRecord, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]IngestionRecord, error)
	Ping(ctx context.Context) error
}

// DerivedValueStore keeps values minted by effects so repeated dispatches for
// one event reuse them. Claim is insert-or-ignore and returns the winner.
type DerivedValueStore interface {
	Get(ctx context.Context, key DerivedValueKey) (DerivedValue, error)
	Claim(ctx context.Context, key DerivedValueKey, candidate string) (DerivedValue, bool, error)
}

type ReplayLedger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// EffectDispatcher hands a verified event to the downstream effect path. It
// must not block on the downstream call.
type EffectDispatcher interface {
	Dispatch(ctx context.Context, origin string, event VerifiedEvent) error
}

type CodeGenerator interface {
	Generate(ctx context.Context, key DerivedValueKey) (string, error)
}

type MetafieldWriter interface {
	SetMetafield(ctx context.Context, in MetafieldInput) error
}
