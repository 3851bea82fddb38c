package webhooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

// Request is the transport-neutral view of one inbound delivery. Body must
// not have been read or decoded by anything else.
type Request struct {
	Method      string
	Route       string
	ContentType string
	Header      http.Header
	Body        io.Reader
}

// Receipt is the decided outcome of a delivery. The HTTP status is final once
// Receive returns; later stages only report through logs and metrics.
type Receipt struct {
	StatusCode int
	Allow      string
	Origin     string
	Outcome    core.IngestOutcome
	Event      core.VerifiedEvent
	// Degraded is set when the event was authenticated but could not be
	// stored.
	Degraded bool
}

// ShouldDispatch reports whether effects may run for this receipt. Events
// that were not durably recorded, or cannot be deduplicated, are skipped.
func (r Receipt) ShouldDispatch() bool {
	if r.StatusCode != http.StatusOK || r.Degraded || !r.Event.Deduplicable() {
		return false
	}
	return r.Outcome == core.IngestOutcomeInserted || r.Outcome == core.IngestOutcomeAlreadyPresent
}

type PipelineConfig struct {
	Origin              string
	Routes              []string
	MaxBodyBytes        int64
	ReplayWindow        time.Duration
	AllowMissingEventID bool
}

// Pipeline runs the ordered receive stages. The order is fixed by Receive and
// cannot be changed through configuration.
type Pipeline struct {
	gate       RequestGate
	verifier   *HMACVerifier
	decoder    EventDecoder
	store      core.IngestionStore
	dispatcher core.EffectDispatcher
	config     PipelineConfig
	observer   core.Observer
	now        func() time.Time
}

type PipelineOption func(*Pipeline)

func WithDispatcher(dispatcher core.EffectDispatcher) PipelineOption {
	return func(p *Pipeline) {
		if dispatcher != nil {
			p.dispatcher = dispatcher
		}
	}
}

func WithObserver(observer core.Observer) PipelineOption {
	return func(p *Pipeline) {
		p.observer = observer
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPipeline(verifier *HMACVerifier, store core.IngestionStore, config PipelineConfig, opts ...PipelineOption) (*Pipeline, error) {
	if verifier == nil {
		return nil, fmt.Errorf("webhooks: pipeline requires a signature verifier")
	}
	if store == nil {
		return nil, fmt.Errorf("webhooks: pipeline requires an ingestion store")
	}
	config.Origin = strings.TrimSpace(config.Origin)
	if config.Origin == "" {
		config.Origin = core.DefaultOriginLabel
	}
	if len(config.Routes) == 0 {
		config.Routes = []string{core.DefaultWebhookRoute}
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = core.DefaultMaxBodyBytes
	}

	p := &Pipeline{
		gate:       NewRequestGate(config.Routes...),
		verifier:   verifier,
		store:      store,
		dispatcher: core.NopEffectDispatcher{},
		config:     config,
		observer:   core.NewObserver(nil, nil),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.decoder = EventDecoder{AllowMissingEventID: config.AllowMissingEventID, Now: p.now}
	return p, nil
}

func (p *Pipeline) Origin() string {
	if p == nil {
		return ""
	}
	return p.config.Origin
}

// Receive authenticates and ingests one delivery. A non-nil error carries the
// rejection; the receipt status code is set in every case.
func (p *Pipeline) Receive(ctx context.Context, req Request) (Receipt, error) {
	receipt := Receipt{Origin: p.Origin()}
	if p == nil {
		receipt.StatusCode = http.StatusInternalServerError
		return receipt, core.NewError("webhook pipeline is not configured", goerrors.CategoryInternal, core.ErrorInternal)
	}
	fields := map[string]any{
		"route":  req.Route,
		"method": req.Method,
		"origin": p.config.Origin,
	}

	decision := p.gate.Evaluate(req.Method, req.ContentType, req.Route)
	if !decision.Accepted() {
		receipt.StatusCode = decision.StatusCode()
		receipt.Allow = decision.Allow
		fields["outcome"] = string(decision.Outcome)
		p.observer.Debug(ctx, "webhook rejected by gate", fields)
		p.finish(ctx, receipt, "gate_rejected")
		return receipt, decision.Err()
	}

	raw, err := ReadRawBody(ctx, req.Body, p.config.MaxBodyBytes)
	if err != nil {
		receipt.StatusCode = core.StatusCode(err)
		fields["error"] = err.Error()
		p.observer.Warn(ctx, "webhook body capture failed", fields)
		p.finish(ctx, receipt, "body_rejected")
		return receipt, err
	}

	notification := core.Notification{
		Method:      req.Method,
		Route:       req.Route,
		ContentType: req.ContentType,
		Signature:   headerValue(req.Header, HeaderHMAC),
		Topic:       headerValue(req.Header, HeaderTopic),
		ShopDomain:  headerValue(req.Header, HeaderShopDomain),
		WebhookID:   headerValue(req.Header, HeaderWebhookID),
		TriggeredAt: headerValue(req.Header, HeaderTriggeredAt),
		RawBody:     raw,
	}
	fields["topic"] = notification.Topic
	fields["shop_domain"] = notification.ShopDomain
	fields["webhook_id"] = notification.WebhookID

	verdict := p.authenticate(notification)
	p.observer.Count(ctx, core.MetricVerifyTotal, map[string]string{
		"origin": p.config.Origin,
		"result": string(verdict.Reason),
	})
	if !verdict.Valid {
		receipt.StatusCode = http.StatusUnauthorized
		fields["reason"] = string(verdict.Reason)
		fields["signature_fingerprint"] = core.Fingerprint(notification.Signature)
		p.observer.Warn(ctx, "webhook authentication failed", fields)
		p.finish(ctx, receipt, "unauthenticated")
		return receipt, core.NewError("notification could not be authenticated", goerrors.CategoryAuth, core.ErrorAuthenticationFailed).
			WithMetadata(map[string]any{"reason": string(verdict.Reason)})
	}

	event, err := p.decoder.Decode(notification)
	if err != nil {
		receipt.StatusCode = http.StatusBadRequest
		fields["error"] = err.Error()
		p.observer.Warn(ctx, "webhook payload malformed", fields)
		p.finish(ctx, receipt, "malformed")
		return receipt, err
	}
	receipt.Event = event
	fields["event_id"] = event.EventID

	receipt.StatusCode = http.StatusOK
	receipt.Outcome, receipt.Degraded = p.ingest(ctx, notification, event, fields)
	fields["outcome"] = string(receipt.Outcome)
	p.observer.Info(ctx, "webhook received", fields)
	p.finish(ctx, receipt, "accepted")
	return receipt, nil
}

// Dispatch hands an accepted receipt to the effect dispatcher. Call it after
// the response is written; its failures are only logged.
func (p *Pipeline) Dispatch(ctx context.Context, receipt Receipt) {
	if p == nil || !receipt.ShouldDispatch() {
		return
	}
	if err := p.dispatcher.Dispatch(ctx, receipt.Origin, receipt.Event); err != nil {
		p.observer.Error(ctx, "webhook effect dispatch failed", map[string]any{
			"origin":   receipt.Origin,
			"event_id": receipt.Event.EventID,
			"error":    err.Error(),
		})
	}
}

func (p *Pipeline) authenticate(n core.Notification) Verdict {
	verdict := p.verifier.Verify(n.RawBody, n.Signature)
	if !verdict.Valid {
		return verdict
	}
	if p.config.ReplayWindow > 0 && !p.withinReplayWindow(n.TriggeredAt) {
		return Verdict{Reason: VerdictReplayWindow}
	}
	return verdict
}

// withinReplayWindow accepts deliveries without a trigger timestamp; the
// header is not covered by the signature.
func (p *Pipeline) withinReplayWindow(triggered string) bool {
	triggered = strings.TrimSpace(triggered)
	if triggered == "" {
		return true
	}
	triggeredAt, err := time.Parse(time.RFC3339Nano, triggered)
	if err != nil {
		return false
	}
	delta := p.now().Sub(triggeredAt.UTC())
	if delta < 0 {
		delta = -delta
	}
	return delta <= p.config.ReplayWindow
}

func (p *Pipeline) ingest(ctx context.Context, n core.Notification, event core.VerifiedEvent, fields map[string]any) (core.IngestOutcome, bool) {
	startedAt := time.Now()
	record := core.IngestionRecord{
		Origin:     p.config.Origin,
		EventID:    event.EventID,
		Topic:      event.Topic,
		ShopDomain: event.ShopDomain,
		WebhookID:  event.WebhookID,
		BodySHA256: BodyDigest(n.RawBody),
		Payload:    event.Payload,
		ReceivedAt: event.ReceivedAt,
	}
	outcome, err := p.store.Ingest(ctx, record)
	tags := map[string]string{"origin": p.config.Origin}
	if err != nil {
		tags["outcome"] = "store_unavailable"
		p.observer.Count(ctx, core.MetricIngestTotal, tags)
		p.observer.ObserveDuration(ctx, core.MetricIngestDurationMS, startedAt, tags)

		logFields := map[string]any{}
		for key, value := range fields {
			logFields[key] = value
		}
		logFields["error"] = err.Error()
		if errors.Is(err, context.Canceled) {
			p.observer.Warn(ctx, "webhook ingestion abandoned", logFields)
		} else {
			p.observer.Error(ctx, "webhook ingestion degraded", logFields)
		}
		return core.IngestOutcomeSkipped, true
	}
	tags["outcome"] = string(outcome)
	p.observer.Count(ctx, core.MetricIngestTotal, tags)
	p.observer.ObserveDuration(ctx, core.MetricIngestDurationMS, startedAt, tags)
	return outcome, false
}

func (p *Pipeline) finish(ctx context.Context, receipt Receipt, result string) {
	p.observer.Count(ctx, core.MetricNotificationsTotal, map[string]string{
		"origin": p.config.Origin,
		"result": result,
		"status": fmt.Sprint(receipt.StatusCode),
	})
}
