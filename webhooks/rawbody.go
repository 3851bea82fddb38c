package webhooks

import (
	"context"
	"fmt"
	"io"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

// ReadRawBody returns the exact request bytes, up to limit. It fails closed:
// an oversized, truncated or interrupted body never yields partial bytes.
func ReadRawBody(ctx context.Context, body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return []byte{}, nil
	}
	if limit <= 0 {
		limit = core.DefaultMaxBodyBytes
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, bodyUnreadable(err)
		}
	}

	raw, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, bodyUnreadable(err)
	}
	if int64(len(raw)) > limit {
		return nil, core.NewError(
			fmt.Sprintf("notification body exceeds %d bytes", limit),
			goerrors.CategoryBadInput,
			core.ErrorBodyTooLarge,
		).WithMetadata(map[string]any{"limit_bytes": limit})
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, bodyUnreadable(err)
		}
	}
	return raw, nil
}

func bodyUnreadable(cause error) error {
	return core.WrapError(cause, goerrors.CategoryBadInput, core.ErrorBodyUnreadable, "notification body could not be read")
}
