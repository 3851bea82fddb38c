package query

import (
	"strings"
	"time"
)

const (
	TypeGetIngestionRecord   = "webhooks.query.record.get"
	TypeListIngestionRecords = "webhooks.query.record.list"
	TypeGetVoucherCode       = "webhooks.query.voucher.get"
)

type GetIngestionRecordMessage struct {
	Origin  string
	EventID string
}

func (GetIngestionRecordMessage) Type() string { return TypeGetIngestionRecord }

func (m GetIngestionRecordMessage) Validate() error {
	return validateEventRef(m.Origin, m.EventID)
}

type ListIngestionRecordsMessage struct {
	Origin string
	Since  time.Time
	Limit  int
}

func (ListIngestionRecordsMessage) Type() string { return TypeListIngestionRecords }

func (m ListIngestionRecordsMessage) Validate() error {
	if m.Limit < 0 {
		return queryInvalidInputError("query: limit must be >= 0")
	}
	return nil
}

type GetVoucherCodeMessage struct {
	Origin  string
	EventID string
}

func (GetVoucherCodeMessage) Type() string { return TypeGetVoucherCode }

func (m GetVoucherCodeMessage) Validate() error {
	return validateEventRef(m.Origin, m.EventID)
}

func validateEventRef(origin string, eventID string) error {
	if strings.TrimSpace(origin) == "" {
		return queryValidationError("origin", "origin is required")
	}
	if strings.TrimSpace(eventID) == "" {
		return queryValidationError("event_id", "event id is required")
	}
	return nil
}
