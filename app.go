package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-ingest/adapters/gocommand"
	"github.com/goliatone/go-webhook-ingest/adapters/gojob"
	"github.com/goliatone/go-webhook-ingest/adapters/gologger"
	"github.com/goliatone/go-webhook-ingest/command"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/inbound"
	"github.com/goliatone/go-webhook-ingest/metrics"
	"github.com/goliatone/go-webhook-ingest/providers/shopify"
	"github.com/goliatone/go-webhook-ingest/ratelimit"
	sqlstore "github.com/goliatone/go-webhook-ingest/store/sql"
	"github.com/goliatone/go-webhook-ingest/webhooks"
)

const (
	loggerName = "webhookd"

	// bounds the in-memory dedupe used without a database
	verificationOnlyLedgerTTL = 48 * time.Hour

	defaultDrainTimeout = 10 * time.Second
)

// App wires configuration, storage, the receive pipeline, the effect workers
// and the HTTP surface.
type App struct {
	config   core.Config
	logger   glog.Logger
	observer core.Observer
	recorder *metrics.Recorder

	client     *persistence.Client
	ownsClient bool
	factory    *sqlstore.RepositoryFactory
	store      core.IngestionStore

	pipeline *webhooks.Pipeline
	queue    *gojob.MemoryQueue
	effects  *gojob.EffectWorker
	facade   *Facade
	router   *gin.Engine
}

func New(cfg core.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := appOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	app := &App{config: cfg}
	app.initLogging(options)
	app.initMetrics(options)

	if err := app.initStorage(options); err != nil {
		return nil, err
	}
	if err := app.initEffects(options); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.initPipeline(options); err != nil {
		_ = app.Close()
		return nil, err
	}
	app.initRouter()

	app.observer.Info(context.Background(), "webhook receiver assembled", map[string]any{
		"origin":          app.pipeline.Origin(),
		"route":           cfg.Webhook.Route,
		"storage":         describeStorage(cfg),
		"effects_enabled": app.effects != nil,
		"metrics_enabled": app.recorder != nil,
	})
	return app, nil
}

func (a *App) initLogging(options appOptions) {
	provider, logger := options.loggerProvider, options.logger
	if provider == nil && logger == nil {
		root := gologger.NewLogger(gologger.NewHandler(os.Stdout, a.config.Logging))
		provider = gologger.NewProvider(root)
	}
	_, a.logger = gologger.Resolve(loggerName, provider, logger)
}

func (a *App) initMetrics(options appOptions) {
	recorder := options.metrics
	if recorder == nil && a.config.Metrics.Enabled {
		a.recorder = metrics.NewRecorder(a.config.ServiceName)
		recorder = a.recorder
	}
	a.observer = core.NewObserver(a.logger, recorder)
}

func (a *App) initStorage(options appOptions) error {
	client := options.persistenceClient
	if client == nil && a.config.StorageEnabled() {
		opened, err := sqlstore.OpenClient(sqlstore.ClientConfig{
			Storage:     a.config.Storage,
			ServiceName: a.config.ServiceName,
		})
		if err != nil {
			return err
		}
		client = opened
		a.ownsClient = true
	}
	if client == nil {
		a.store = core.NewLedgerIngestionStore(core.NewMemoryReplayLedger(verificationOnlyLedgerTTL), verificationOnlyLedgerTTL)
		a.observer.Warn(context.Background(), "no database configured; running in verification-only mode", nil)
		return nil
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		if a.ownsClient {
			_ = client.Close()
		}
		return err
	}
	a.client = client
	a.factory = factory
	a.store = factory.IngestionStore()
	return nil
}

func (a *App) initEffects(options appOptions) error {
	writer := options.metafieldWriter
	enabled := a.config.Effects.Enabled && a.factory != nil && (writer != nil || a.config.EffectsEnabled())
	if !enabled {
		deps := FacadeDependencies{Records: a.store}
		if a.factory != nil {
			deps.Values = a.factory.DerivedValueStore()
		}
		a.facade = NewFacade(deps)
		return nil
	}

	cacheConfig := repositorycache.DefaultConfig()
	values, err := a.factory.CachedDerivedValueStore(cacheConfig)
	if err != nil {
		return err
	}
	if writer == nil {
		admin, err := shopify.NewMetafieldWriter(shopify.AdminConfig{
			ShopDomain:  a.config.Shopify.ShopDomain,
			AccessToken: a.config.Shopify.AccessToken,
			APIVersion:  a.config.Shopify.APIVersion,
			Timeout:     a.config.Effects.Timeout,
		}, options.httpClient)
		if err != nil {
			return err
		}
		writer = admin.WithThrottle(ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore()))
	}
	codes := options.codeGenerator
	if codes == nil {
		codes = shopify.NewVoucherCodeGenerator(a.config.Effects.CodePrefix)
	}
	effect, err := core.NewVoucherEffect(values, codes, writer, core.VoucherEffectConfig{
		Namespace: a.config.Effects.MetafieldNamespace,
		Key:       a.config.Effects.MetafieldKey,
	}, a.observer)
	if err != nil {
		return err
	}
	a.facade = NewFacade(FacadeDependencies{Records: a.store, Values: values, Effect: effect})

	a.queue = gojob.NewMemoryQueue(a.config.Effects.QueueSize)
	attach := a.facade.Commands().AttachVoucher
	effects, err := gojob.NewEffectWorker(a.queue, func(ctx context.Context, req core.EffectRequest) error {
		return gocommand.Execute(ctx, attach, command.AttachVoucherMessage{Request: req})
	}, gojob.EffectWorkerConfig{
		Workers: a.config.Effects.Workers,
		Timeout: a.config.Effects.Timeout,
	},
		worker.WithHooks(gojob.NewObserverHook(a.observer)),
		worker.WithLogger(job.GoLogger(a.logger)),
	)
	if err != nil {
		return err
	}
	a.effects = effects
	return nil
}

func (a *App) initPipeline(options appOptions) error {
	verifier, err := webhooks.NewHMACVerifier(a.config.Webhook.Secret, a.config.Webhook.SecretEncoding)
	if err != nil {
		return err
	}
	pipelineOpts := []webhooks.PipelineOption{
		webhooks.WithObserver(a.observer),
		webhooks.WithClock(options.now),
	}
	if a.queue != nil {
		dispatcher, err := gojob.NewQueueDispatcher(a.queue, a.observer)
		if err != nil {
			return err
		}
		pipelineOpts = append(pipelineOpts, webhooks.WithDispatcher(dispatcher))
	}
	pipeline, err := webhooks.NewPipeline(verifier, a.store, webhooks.PipelineConfig{
		Origin:              a.config.Webhook.OriginLabel,
		Routes:              []string{a.config.Webhook.Route},
		MaxBodyBytes:        a.config.Webhook.MaxBodyBytes,
		ReplayWindow:        a.config.Webhook.ReplayWindow,
		AllowMissingEventID: a.config.Webhook.AllowMissingEventID,
	}, pipelineOpts...)
	if err != nil {
		return err
	}
	a.pipeline = pipeline
	return nil
}

func (a *App) initRouter() {
	var readiness inbound.Pinger
	if a.factory != nil {
		readiness = a.store
	}
	routerConfig := inbound.RouterConfig{Routes: []string{a.config.Webhook.Route}}
	if a.recorder != nil {
		routerConfig.Metrics = a.recorder.Handler()
		routerConfig.MetricsPath = a.config.Metrics.Path
	}
	a.router = inbound.NewRouter(inbound.NewHandler(a.pipeline, readiness, a.observer), routerConfig)
}

func (a *App) Config() core.Config {
	return a.config
}

func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) Pipeline() *webhooks.Pipeline {
	return a.pipeline
}

func (a *App) Store() core.IngestionStore {
	return a.store
}

func (a *App) Facade() *Facade {
	return a.facade
}

func (a *App) EffectsEnabled() bool {
	return a.effects != nil
}

// Start launches the effect workers. Jobs already running are not canceled
// when ctx ends; Stop drains the queue and waits for them.
func (a *App) Start(ctx context.Context) error {
	if a.effects == nil {
		return nil
	}
	if err := a.effects.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("ingest: start effect workers: %w", err)
	}
	return nil
}

// Stop drains queued effects within the shutdown timeout, then closes the
// queue.
func (a *App) Stop() {
	if a.effects == nil {
		return
	}
	timeout := a.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultDrainTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.effects.Stop(ctx); err != nil {
		a.observer.Warn(ctx, "effect workers did not drain before shutdown", map[string]any{
			"error":   err.Error(),
			"pending": a.queue.Len(),
		})
	}
	a.queue.Close()
	if dead := a.queue.DeadLetters(); len(dead) > 0 {
		a.observer.Warn(context.Background(), "effect jobs dead-lettered during this run", map[string]any{
			"count": len(dead),
		})
	}
}

// Run serves HTTP until ctx is canceled, then drains in-flight requests and
// queued effects.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	server := inbound.NewServer(a.config.Server.Port, a.router, a.config.Server.ShutdownTimeout, a.observer)
	err := server.Run(ctx)
	a.Stop()
	return err
}

func (a *App) Close() error {
	if a == nil || a.client == nil || !a.ownsClient {
		return nil
	}
	if err := a.client.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("ingest: close persistence client: %w", err)
	}
	return nil
}

func describeStorage(cfg core.Config) string {
	if !cfg.StorageEnabled() {
		return "verification-only"
	}
	return strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
}
