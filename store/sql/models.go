package sqlstore

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

type ingestionRecordModel struct {
	bun.BaseModel `bun:"table:webhook_ingestion_records,alias:wir"`

	ID         string          `bun:"id,pk"`
	Origin     string          `bun:"origin,notnull"`
	EventID    *string         `bun:"event_id"`
	Topic      string          `bun:"topic,notnull"`
	ShopDomain string          `bun:"shop_domain,notnull"`
	WebhookID  string          `bun:"webhook_id,notnull"`
	BodySHA256 string          `bun:"body_sha256,notnull"`
	Payload    json.RawMessage `bun:"payload,type:jsonb,notnull"`
	ReceivedAt time.Time       `bun:"received_at,notnull"`
	CreatedAt  time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type derivedValueModel struct {
	bun.BaseModel `bun:"table:webhook_derived_values,alias:wdv"`

	ID        string    `bun:"id,pk"`
	Origin    string    `bun:"origin,notnull"`
	EventID   string    `bun:"event_id,notnull"`
	Kind      string    `bun:"kind,notnull"`
	Value     string    `bun:"value,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
