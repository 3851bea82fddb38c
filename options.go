package ingest

import (
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/transport"
)

type Option func(*appOptions)

type appOptions struct {
	logger            glog.Logger
	loggerProvider    glog.LoggerProvider
	persistenceClient *persistence.Client
	metrics           core.MetricsRecorder
	httpClient        transport.HTTPDoer
	metafieldWriter   core.MetafieldWriter
	codeGenerator     core.CodeGenerator
	now               func() time.Time
}

func WithLogger(logger glog.Logger) Option {
	return func(o *appOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(o *appOptions) {
		o.loggerProvider = provider
	}
}

// WithPersistenceClient supplies an already migrated client. The app does not
// close clients it did not open.
func WithPersistenceClient(client *persistence.Client) Option {
	return func(o *appOptions) {
		o.persistenceClient = client
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(o *appOptions) {
		o.metrics = recorder
	}
}

func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(o *appOptions) {
		o.httpClient = client
	}
}

func WithMetafieldWriter(writer core.MetafieldWriter) Option {
	return func(o *appOptions) {
		o.metafieldWriter = writer
	}
}

func WithCodeGenerator(generator core.CodeGenerator) Option {
	return func(o *appOptions) {
		o.codeGenerator = generator
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *appOptions) {
		o.now = now
	}
}
