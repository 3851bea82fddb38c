package sqlstore

import "github.com/goliatone/go-webhook-ingest/core"

var (
	_ core.IngestionStore    = (*IngestionStore)(nil)
	_ core.DerivedValueStore = (*DerivedValueStore)(nil)
)
