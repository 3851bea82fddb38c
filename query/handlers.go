package query

import (
	"context"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

type IngestionReader interface {
	Get(ctx context.Context, origin string, eventID string) (core.IngestionRecord, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]core.IngestionRecord, error)
}

type DerivedValueReader interface {
	Get(ctx context.Context, key core.DerivedValueKey) (core.DerivedValue, error)
}

type GetIngestionRecordQuery struct {
	reader IngestionReader
}

func NewGetIngestionRecordQuery(reader IngestionReader) *GetIngestionRecordQuery {
	return &GetIngestionRecordQuery{reader: reader}
}

func (q *GetIngestionRecordQuery) Query(ctx context.Context, msg GetIngestionRecordMessage) (core.IngestionRecord, error) {
	if q == nil || q.reader == nil {
		return core.IngestionRecord{}, queryDependencyError("query: ingestion reader is required")
	}
	return q.reader.Get(ctx, msg.Origin, msg.EventID)
}

type ListIngestionRecordsQuery struct {
	reader IngestionReader
}

func NewListIngestionRecordsQuery(reader IngestionReader) *ListIngestionRecordsQuery {
	return &ListIngestionRecordsQuery{reader: reader}
}

// Query lists records received at or after msg.Since. An empty Origin lists
// every origin.
func (q *ListIngestionRecordsQuery) Query(ctx context.Context, msg ListIngestionRecordsMessage) ([]core.IngestionRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: ingestion reader is required")
	}
	records, err := q.reader.ListSince(ctx, msg.Since, msg.Limit)
	if err != nil {
		return nil, err
	}
	if msg.Origin == "" {
		return records, nil
	}
	filtered := make([]core.IngestionRecord, 0, len(records))
	for _, record := range records {
		if record.Origin == msg.Origin {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

type GetVoucherCodeQuery struct {
	reader DerivedValueReader
}

func NewGetVoucherCodeQuery(reader DerivedValueReader) *GetVoucherCodeQuery {
	return &GetVoucherCodeQuery{reader: reader}
}

func (q *GetVoucherCodeQuery) Query(ctx context.Context, msg GetVoucherCodeMessage) (core.DerivedValue, error) {
	if q == nil || q.reader == nil {
		return core.DerivedValue{}, queryDependencyError("query: derived value reader is required")
	}
	return q.reader.Get(ctx, core.DerivedValueKey{
		Origin:  msg.Origin,
		EventID: msg.EventID,
		Kind:    core.DerivedValueKindVoucherCode,
	}.Normalize())
}
