package transport

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// Only failures on the far side of the call count as downstream failures; a
// request we could not build is our own fault.
func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryExternal, goerrors.CategoryAuth, goerrors.CategoryRateLimit:
		return core.ErrorDownstreamWriteFailed
	default:
		return core.ErrorInternal
	}
}
