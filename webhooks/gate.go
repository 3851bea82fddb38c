package webhooks

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

const ContentTypeJSON = "application/json"

type GateOutcome string

const (
	GateAccept            GateOutcome = "accept"
	GateRejectMethod      GateOutcome = "reject_method"
	GateRejectContentKind GateOutcome = "reject_content_kind"
	GateRejectRoute       GateOutcome = "reject_route"
)

type GateDecision struct {
	Outcome GateOutcome
	// Allow names the verb the route accepts when Outcome is GateRejectMethod.
	Allow string
}

func (d GateDecision) Accepted() bool {
	return d.Outcome == GateAccept
}

func (d GateDecision) StatusCode() int {
	switch d.Outcome {
	case GateAccept:
		return http.StatusOK
	case GateRejectMethod:
		return http.StatusMethodNotAllowed
	case GateRejectContentKind:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusNotFound
	}
}

// Err returns the rejection as a webhook error, or nil when accepted.
func (d GateDecision) Err() error {
	if d.Accepted() {
		return nil
	}
	metadata := map[string]any{"outcome": string(d.Outcome)}
	if d.Allow != "" {
		metadata["allow"] = d.Allow
	}
	return core.NewError("notification rejected by request gate", goerrors.CategoryBadInput, core.ErrorGateRejected).
		WithCode(d.StatusCode()).
		WithMetadata(metadata)
}

// RequestGate rejects anything that is not a JSON POST to a notification
// route. It never looks at the body.
type RequestGate struct {
	routes map[string]string
}

func NewRequestGate(routes ...string) RequestGate {
	gate := RequestGate{routes: map[string]string{}}
	for _, route := range routes {
		route = normalizeRoute(route)
		if route == "" {
			continue
		}
		gate.routes[route] = http.MethodPost
	}
	return gate
}

func (g RequestGate) Evaluate(method, contentType, route string) GateDecision {
	allowed, ok := g.routes[normalizeRoute(route)]
	if !ok {
		return GateDecision{Outcome: GateRejectRoute}
	}
	if !strings.EqualFold(strings.TrimSpace(method), allowed) {
		return GateDecision{Outcome: GateRejectMethod, Allow: allowed}
	}
	if !IsJSONContentType(contentType) {
		return GateDecision{Outcome: GateRejectContentKind}
	}
	return GateDecision{Outcome: GateAccept}
}

// IsJSONContentType reports whether value declares application/json,
// ignoring case and parameters such as charset.
func IsJSONContentType(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil && !errors.Is(err, mime.ErrInvalidMediaParameter) {
		return false
	}
	return mediaType == ContentTypeJSON
}

func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return ""
	}
	if len(route) > 1 {
		route = strings.TrimRight(route, "/")
	}
	return route
}
