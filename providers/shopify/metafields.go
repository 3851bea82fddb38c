package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/ratelimit"
	"github.com/goliatone/go-webhook-ingest/transport"
)

const metafieldsSetMutation = `mutation MetafieldsSet($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields { id namespace key value }
    userErrors { field message code }
  }
}`

type metafieldsSetPayload struct {
	MetafieldsSet struct {
		Metafields []struct {
			ID        string `json:"id"`
			Namespace string `json:"namespace"`
			Key       string `json:"key"`
			Value     string `json:"value"`
		} `json:"metafields"`
		UserErrors []struct {
			Field   []string `json:"field"`
			Message string   `json:"message"`
			Code    string   `json:"code"`
		} `json:"userErrors"`
	} `json:"metafieldsSet"`
}

// ThrottlePolicy gates Admin API calls per shop.
type ThrottlePolicy interface {
	BeforeCall(ctx context.Context, key string) error
	AfterCall(ctx context.Context, key string, obs ratelimit.Observation) error
}

// MetafieldWriter sets order metafields through the Admin GraphQL API.
// metafieldsSet is an upsert, so repeating a write with the same value is
// harmless.
type MetafieldWriter struct {
	config   AdminConfig
	graphql  *transport.GraphQLAdapter
	throttle ThrottlePolicy
}

func NewMetafieldWriter(config AdminConfig, client transport.HTTPDoer) (*MetafieldWriter, error) {
	normalized, err := config.normalize()
	if err != nil {
		return nil, err
	}
	return &MetafieldWriter{
		config:  normalized,
		graphql: transport.NewGraphQLAdapter(normalized.Endpoint, client),
	}, nil
}

// WithThrottle makes the writer refuse calls while the shop is throttled and
// feed every response back into policy.
func (w *MetafieldWriter) WithThrottle(policy ThrottlePolicy) *MetafieldWriter {
	if w != nil {
		w.throttle = policy
	}
	return w
}

func (w *MetafieldWriter) Endpoint() string {
	if w == nil {
		return ""
	}
	return w.config.Endpoint
}

func (w *MetafieldWriter) SetMetafield(ctx context.Context, in core.MetafieldInput) error {
	if w == nil || w.graphql == nil {
		return core.NewError("metafield writer is not configured", goerrors.CategoryInternal, core.ErrorInternal)
	}
	if err := w.validate(in); err != nil {
		return err
	}
	metadata := map[string]any{
		"shop_domain": w.config.ShopDomain,
		"owner_id":    in.OwnerID,
		"namespace":   in.Namespace,
		"key":         in.Key,
	}
	if w.throttle != nil {
		if err := w.throttle.BeforeCall(ctx, w.config.ShopDomain); err != nil {
			return err
		}
	}

	result, err := w.graphql.Execute(ctx, "", transport.GraphQLQuery{
		Query:         metafieldsSetMutation,
		OperationName: "MetafieldsSet",
		Variables: map[string]any{
			"metafields": []map[string]any{{
				"ownerId":   in.OwnerID,
				"namespace": in.Namespace,
				"key":       in.Key,
				"type":      in.Type,
				"value":     in.Value,
			}},
		},
		Headers: map[string]string{HeaderAccessToken: w.config.AccessToken},
	})
	meta := NormalizeAdminAPIResponse(result.Response).WithThrottleStatus(result.Extensions)
	for key, value := range meta.Fields() {
		metadata[key] = value
	}
	if w.throttle != nil && meta.StatusCode > 0 {
		if throttleErr := w.throttle.AfterCall(ctx, w.config.ShopDomain, meta.Observation()); throttleErr != nil {
			metadata["throttle_error"] = throttleErr.Error()
		}
	}
	if err != nil {
		return core.DownstreamWriteError(err, metadata)
	}

	var payload metafieldsSetPayload
	if err := json.Unmarshal(result.Data, &payload); err != nil {
		return core.DownstreamWriteError(err, metadata)
	}
	if userErrors := payload.MetafieldsSet.UserErrors; len(userErrors) > 0 {
		messages := make([]string, 0, len(userErrors))
		for _, entry := range userErrors {
			message := strings.TrimSpace(entry.Message)
			if len(entry.Field) > 0 {
				message = strings.Join(entry.Field, ".") + ": " + message
			}
			if entry.Code != "" {
				message = entry.Code + " " + message
			}
			messages = append(messages, message)
		}
		metadata["user_errors"] = messages
		return core.DownstreamWriteError(
			fmt.Errorf("providers/shopify: metafieldsSet rejected input: %s", strings.Join(messages, "; ")),
			metadata,
		)
	}
	if len(payload.MetafieldsSet.Metafields) == 0 {
		return core.DownstreamWriteError(fmt.Errorf("providers/shopify: metafieldsSet returned no metafields"), metadata)
	}
	return nil
}

func (w *MetafieldWriter) validate(in core.MetafieldInput) error {
	if shop := strings.TrimSpace(in.ShopDomain); shop != "" {
		normalized, err := NormalizeShopDomain(shop)
		if err != nil || normalized != w.config.ShopDomain {
			return core.NewError("notification shop does not match the configured shop", goerrors.CategoryBadInput, core.ErrorInternal).
				WithMetadata(map[string]any{"shop_domain": shop, "configured_shop_domain": w.config.ShopDomain})
		}
	}
	fields := []goerrors.FieldError{}
	if !strings.HasPrefix(strings.TrimSpace(in.OwnerID), "gid://shopify/") {
		fields = append(fields, goerrors.FieldError{Field: "owner_id", Message: "must be a shopify gid"})
	}
	if strings.TrimSpace(in.Namespace) == "" {
		fields = append(fields, goerrors.FieldError{Field: "namespace", Message: "required"})
	}
	if strings.TrimSpace(in.Key) == "" {
		fields = append(fields, goerrors.FieldError{Field: "key", Message: "required"})
	}
	if strings.TrimSpace(in.Type) == "" {
		fields = append(fields, goerrors.FieldError{Field: "type", Message: "required"})
	}
	if in.Value == "" {
		fields = append(fields, goerrors.FieldError{Field: "value", Message: "required"})
	}
	if len(fields) > 0 {
		return goerrors.NewValidation("invalid metafield input", fields...).
			WithTextCode(core.ErrorInternal)
	}
	return nil
}

var _ core.MetafieldWriter = (*MetafieldWriter)(nil)
