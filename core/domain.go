package core

import (
	"encoding/json"
	"strings"
	"time"
)

type IngestOutcome string

const (
	IngestOutcomeInserted       IngestOutcome = "inserted"
	IngestOutcomeAlreadyPresent IngestOutcome = "already_present"
	// IngestOutcomeSkipped is reported when persistence is disabled or degraded.
	IngestOutcomeSkipped IngestOutcome = "skipped"
)

const DerivedValueKindVoucherCode = "voucher_code"

// Notification is one inbound delivery attempt. RawBody is the exact wire
// payload and must not be mutated before verification completes.
type Notification struct {
	Method      string
	Route       string
	ContentType string
	Signature   string
	Topic       string
	ShopDomain  string
	WebhookID   string
	TriggeredAt string
	RawBody     []byte
}

// VerifiedEvent is derived from exactly one authenticated Notification.
type VerifiedEvent struct {
	EventID    string
	OwnerID    string
	Topic      string
	ShopDomain string
	WebhookID  string
	Payload    json.RawMessage
	Fields     map[string]any
	ReceivedAt time.Time
}

func (e VerifiedEvent) Deduplicable() bool {
	return strings.TrimSpace(e.EventID) != ""
}

type IngestionRecord struct {
	ID         string
	Origin     string
	EventID    string
	Topic      string
	ShopDomain string
	WebhookID  string
	BodySHA256 string
	Payload    json.RawMessage
	ReceivedAt time.Time
	CreatedAt  time.Time
}

type DerivedValueKey struct {
	Origin  string
	EventID string
	Kind    string
}

func (k DerivedValueKey) Normalize() DerivedValueKey {
	return DerivedValueKey{
		Origin:  strings.TrimSpace(k.Origin),
		EventID: strings.TrimSpace(k.EventID),
		Kind:    strings.TrimSpace(strings.ToLower(k.Kind)),
	}
}

type DerivedValue struct {
	Key       DerivedValueKey
	Value     string
	CreatedAt time.Time
}

type EffectRequest struct {
	Origin     string
	EventID    string
	OwnerID    string
	Topic      string
	ShopDomain string
}

type EffectResult struct {
	Value   string
	Reused  bool
	Written bool
}

type MetafieldInput struct {
	ShopDomain string
	OwnerID    string
	Namespace  string
	Key        string
	Type       string
	Value      string
}
