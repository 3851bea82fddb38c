package sqlstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/google/uuid"
)

func newIngestionRecordModel(in core.IngestionRecord, now time.Time) *ingestionRecordModel {
	model := &ingestionRecordModel{
		ID:         strings.TrimSpace(in.ID),
		Origin:     strings.TrimSpace(in.Origin),
		Topic:      strings.TrimSpace(in.Topic),
		ShopDomain: strings.TrimSpace(in.ShopDomain),
		WebhookID:  strings.TrimSpace(in.WebhookID),
		BodySHA256: in.BodySHA256,
		Payload:    append(json.RawMessage(nil), in.Payload...),
		ReceivedAt: in.ReceivedAt.UTC(),
		CreatedAt:  now,
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if eventID := strings.TrimSpace(in.EventID); eventID != "" {
		model.EventID = &eventID
	}
	if model.ReceivedAt.IsZero() {
		model.ReceivedAt = now
	}
	if len(model.Payload) == 0 {
		model.Payload = json.RawMessage("null")
	}
	return model
}

func (r *ingestionRecordModel) toDomain() core.IngestionRecord {
	if r == nil {
		return core.IngestionRecord{}
	}
	record := core.IngestionRecord{
		ID:         r.ID,
		Origin:     r.Origin,
		Topic:      r.Topic,
		ShopDomain: r.ShopDomain,
		WebhookID:  r.WebhookID,
		BodySHA256: r.BodySHA256,
		Payload:    append(json.RawMessage(nil), r.Payload...),
		ReceivedAt: r.ReceivedAt.UTC(),
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if r.EventID != nil {
		record.EventID = *r.EventID
	}
	return record
}

func newDerivedValueModel(key core.DerivedValueKey, value string, now time.Time) *derivedValueModel {
	return &derivedValueModel{
		ID:        uuid.NewString(),
		Origin:    key.Origin,
		EventID:   key.EventID,
		Kind:      key.Kind,
		Value:     value,
		CreatedAt: now,
	}
}

func (r *derivedValueModel) toDomain() core.DerivedValue {
	if r == nil {
		return core.DerivedValue{}
	}
	return core.DerivedValue{
		Key: core.DerivedValueKey{
			Origin:  r.Origin,
			EventID: r.EventID,
			Kind:    r.Kind,
		},
		Value:     r.Value,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
