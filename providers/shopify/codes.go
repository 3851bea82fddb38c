package shopify

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/google/uuid"
)

const DefaultCodePrefix = "RE4-"

// VoucherCodeGenerator mints codes shaped PREFIX + XXXX-XXXX-XXXX from random
// uuid entropy. The key is not part of the code; uniqueness per event comes
// from the derived value store.
type VoucherCodeGenerator struct {
	Prefix  string
	NewUUID func() (uuid.UUID, error)
}

func NewVoucherCodeGenerator(prefix string) VoucherCodeGenerator {
	return VoucherCodeGenerator{Prefix: prefix, NewUUID: uuid.NewRandom}
}

func (g VoucherCodeGenerator) Generate(ctx context.Context, key core.DerivedValueKey) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	newUUID := g.NewUUID
	if newUUID == nil {
		newUUID = uuid.NewRandom
	}
	id, err := newUUID()
	if err != nil {
		return "", core.WrapError(err, goerrors.CategoryInternal, core.ErrorInternal, "generate voucher code entropy").
			WithMetadata(map[string]any{"origin": key.Origin, "event_id": key.EventID})
	}
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return strings.TrimSpace(g.Prefix) + hex[0:4] + "-" + hex[4:8] + "-" + hex[8:12], nil
}

var _ core.CodeGenerator = VoucherCodeGenerator{}
