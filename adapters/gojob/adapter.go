package gojob

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-webhook-ingest/core"

	job "github.com/goliatone/go-job"
)

const (
	JobIDAttachVoucher = "webhooks.effect.attach_voucher"

	paramOrigin     = "origin"
	paramEventID    = "event_id"
	paramOwnerID    = "owner_id"
	paramTopic      = "topic"
	paramShopDomain = "shop_domain"
)

// MessageFromEvent maps an effect request to a go-job execution message. The
// idempotency key is origin:event_id. Dedup stays off at the job level: a
// redelivered event re-applies the effect and reuses the stored code.
func MessageFromEvent(req core.EffectRequest) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDAttachVoucher,
		ScriptPath: JobIDAttachVoucher,
		Parameters: map[string]any{
			paramOrigin:     strings.TrimSpace(req.Origin),
			paramEventID:    strings.TrimSpace(req.EventID),
			paramOwnerID:    strings.TrimSpace(req.OwnerID),
			paramTopic:      strings.TrimSpace(req.Topic),
			paramShopDomain: strings.TrimSpace(req.ShopDomain),
		},
		IdempotencyKey: core.DedupeKey(req.Origin, req.EventID),
		DedupPolicy:    job.DedupPolicyIgnore,
	}
}

// EffectRequestFromMessage reverses MessageFromEvent.
func EffectRequestFromMessage(msg *job.ExecutionMessage) (core.EffectRequest, error) {
	if msg == nil {
		return core.EffectRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDAttachVoucher {
		return core.EffectRequest{}, fmt.Errorf("gojob: unsupported job %q", msg.JobID)
	}
	return core.EffectRequest{
		Origin:     stringParam(msg.Parameters, paramOrigin),
		EventID:    stringParam(msg.Parameters, paramEventID),
		OwnerID:    stringParam(msg.Parameters, paramOwnerID),
		Topic:      stringParam(msg.Parameters, paramTopic),
		ShopDomain: stringParam(msg.Parameters, paramShopDomain),
	}, nil
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

func copyMessage(msg *job.ExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	cloned := *msg
	cloned.Parameters = copyAnyMap(msg.Parameters)
	return &cloned
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
