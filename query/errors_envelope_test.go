package query

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

func TestGetIngestionRecordMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetIngestionRecordMessage{Origin: "shopify"}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorMalformedPayload {
		t.Fatalf("expected %q text code, got %q", core.ErrorMalformedPayload, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 {
		t.Fatalf("expected validation errors in envelope")
	}
	if validation[0].Field != "event_id" {
		t.Fatalf("expected event_id validation field, got %q", validation[0].Field)
	}
}

func TestGetIngestionRecordQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *GetIngestionRecordQuery
	_, err := q.Query(context.Background(), GetIngestionRecordMessage{})
	if err == nil {
		t.Fatalf("expected dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.ErrorInternal, rich.TextCode)
	}
	if rich.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d code, got %d", http.StatusInternalServerError, rich.Code)
	}
}

func TestListIngestionRecordsMessage_RejectsNegativeLimit(t *testing.T) {
	if err := (ListIngestionRecordsMessage{Limit: -1}).Validate(); !core.IsTextCode(err, core.ErrorMalformedPayload) {
		t.Fatalf("expected bad input for negative limit, got %v", err)
	}
	if err := (ListIngestionRecordsMessage{}).Validate(); err != nil {
		t.Fatalf("expected zero limit to be accepted, got %v", err)
	}
}
