package command

import (
	"context"
	"strings"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/webhooks"
)

type EffectApplier interface {
	Apply(ctx context.Context, req core.EffectRequest) (core.EffectResult, error)
}

type IngestionLister interface {
	ListSince(ctx context.Context, since time.Time, limit int) ([]core.IngestionRecord, error)
}

type AttachVoucherCommand struct {
	effect EffectApplier
}

func NewAttachVoucherCommand(effect EffectApplier) *AttachVoucherCommand {
	return &AttachVoucherCommand{effect: effect}
}

func (c *AttachVoucherCommand) Execute(ctx context.Context, msg AttachVoucherMessage) error {
	if c == nil || c.effect == nil {
		return commandDependencyError("command: voucher effect is required")
	}
	out, err := c.effect.Apply(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReplayEffectsCommand struct {
	records IngestionLister
	effect  EffectApplier
	decoder webhooks.EventDecoder
}

func NewReplayEffectsCommand(records IngestionLister, effect EffectApplier) *ReplayEffectsCommand {
	return &ReplayEffectsCommand{records: records, effect: effect}
}

// Execute applies effects to every stored record of msg.Origin. Records
// without an event id are skipped. A failing record does not stop the run.
func (c *ReplayEffectsCommand) Execute(ctx context.Context, msg ReplayEffectsMessage) error {
	if c == nil || c.records == nil || c.effect == nil {
		return commandDependencyError("command: replay requires an ingestion store and an effect")
	}
	records, err := c.records.ListSince(ctx, msg.Since, msg.Limit)
	if err != nil {
		return err
	}

	origin := strings.TrimSpace(msg.Origin)
	summary := ReplaySummary{}
	for _, record := range records {
		if record.Origin != origin {
			continue
		}
		summary.Scanned++
		if strings.TrimSpace(record.EventID) == "" {
			summary.Skipped++
			continue
		}
		event, decodeErr := c.decoder.Decode(core.Notification{
			Topic:      record.Topic,
			ShopDomain: record.ShopDomain,
			WebhookID:  record.WebhookID,
			RawBody:    record.Payload,
		})
		if decodeErr != nil {
			summary.Failed++
			continue
		}
		if _, applyErr := c.effect.Apply(ctx, core.EffectRequestFromEvent(origin, event)); applyErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			summary.Failed++
			continue
		}
		summary.Applied++
	}
	storeResult(ctx, summary)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
