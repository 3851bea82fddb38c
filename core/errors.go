package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorGateRejected          = "WEBHOOK_GATE_REJECTED"
	ErrorAuthenticationFailed  = "WEBHOOK_AUTHENTICATION_FAILED"
	ErrorMalformedPayload      = "WEBHOOK_MALFORMED_PAYLOAD"
	ErrorBodyUnreadable        = "WEBHOOK_BODY_UNREADABLE"
	ErrorBodyTooLarge          = "WEBHOOK_BODY_TOO_LARGE"
	ErrorStoreUnavailable      = "WEBHOOK_STORE_UNAVAILABLE"
	ErrorDownstreamWriteFailed = "WEBHOOK_DOWNSTREAM_WRITE_FAILED"
	ErrorRecordNotFound        = "WEBHOOK_RECORD_NOT_FOUND"
	ErrorInternal              = "WEBHOOK_INTERNAL_ERROR"
)

// NewError builds a webhook error envelope with an HTTP status derived from
// the text code.
func NewError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func WrapError(err error, category goerrors.Category, textCode string, message string) *goerrors.Error {
	if err == nil {
		return nil
	}
	return ensureErrorEnvelope(
		goerrors.Wrap(err, category, message).
			WithTextCode(textCode),
	)
}

func StoreUnavailableError(err error, metadata map[string]any) *goerrors.Error {
	wrapped := WrapError(err, goerrors.CategoryExternal, ErrorStoreUnavailable, "ingestion store unavailable")
	if wrapped != nil && len(metadata) > 0 {
		wrapped = wrapped.WithMetadata(metadata)
	}
	return wrapped
}

func DownstreamWriteError(err error, metadata map[string]any) *goerrors.Error {
	wrapped := WrapError(err, goerrors.CategoryExternal, ErrorDownstreamWriteFailed, "downstream write failed")
	if wrapped != nil && len(metadata) > 0 {
		wrapped = wrapped.WithMetadata(metadata)
	}
	return wrapped
}

// MapError normalizes any error into the webhook envelope. Errors that are
// already rich keep their text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return WrapError(err, goerrors.CategoryOperation, ErrorInternal, "operation canceled")
	}
	return WrapError(err, goerrors.CategoryInternal, ErrorInternal, "An unexpected error occurred")
}

func NotFoundError(message string, metadata map[string]any) *goerrors.Error {
	err := NewError(message, goerrors.CategoryNotFound, ErrorRecordNotFound)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func IsNotFound(err error) bool {
	return IsTextCode(err, ErrorRecordNotFound)
}

func IsTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), strings.TrimSpace(textCode))
}

// StatusCode returns the HTTP status for err. Unknown errors are 500.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	mapped := MapError(err)
	if mapped == nil || mapped.Code == 0 {
		return http.StatusInternalServerError
	}
	return mapped.Code
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Code == 0 {
		err.Code = httpStatusForTextCode(err.TextCode, err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorMalformedPayload
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuthenticationFailed
	case goerrors.CategoryExternal:
		return ErrorStoreUnavailable
	case goerrors.CategoryNotFound:
		return ErrorRecordNotFound
	default:
		return ErrorInternal
	}
}

func httpStatusForTextCode(textCode string, category goerrors.Category) int {
	switch textCode {
	case ErrorAuthenticationFailed:
		return http.StatusUnauthorized
	case ErrorMalformedPayload, ErrorBodyUnreadable:
		return http.StatusBadRequest
	case ErrorBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorGateRejected:
		return http.StatusBadRequest
	case ErrorStoreUnavailable, ErrorDownstreamWriteFailed:
		return http.StatusServiceUnavailable
	case ErrorRecordNotFound:
		return http.StatusNotFound
	}
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
