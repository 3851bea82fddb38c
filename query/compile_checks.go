package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-ingest/core"
)

var (
	_ gocmd.Querier[GetIngestionRecordMessage, core.IngestionRecord]     = (*GetIngestionRecordQuery)(nil)
	_ gocmd.Querier[ListIngestionRecordsMessage, []core.IngestionRecord] = (*ListIngestionRecordsQuery)(nil)
	_ gocmd.Querier[GetVoucherCodeMessage, core.DerivedValue]            = (*GetVoucherCodeQuery)(nil)
)
