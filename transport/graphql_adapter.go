package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const KindGraphQL = "graphql"

// GraphQLQuery is one operation posted to a GraphQL endpoint.
type GraphQLQuery struct {
	Query         string
	OperationName string
	Variables     map[string]any
	Headers       map[string]string
}

type GraphQLError struct {
	Message string
	Path    []any
	Code    string
}

// GraphQLResult is the decoded envelope. Data stays raw so callers can decode
// the part of the tree they asked for.
type GraphQLResult struct {
	Data       json.RawMessage
	Errors     []GraphQLError
	Extensions map[string]any
	Response   Response
}

type GraphQLAdapter struct {
	Endpoint string
	REST     *RESTAdapter
}

func NewGraphQLAdapter(endpoint string, client HTTPDoer) *GraphQLAdapter {
	return &GraphQLAdapter{
		Endpoint: strings.TrimSpace(endpoint),
		REST:     NewRESTAdapter(client),
	}
}

func (*GraphQLAdapter) Kind() string {
	return KindGraphQL
}

// Execute posts query to endpoint (or the adapter default) and decodes the
// response envelope. Non-2xx statuses and top level errors are returned as
// downstream failures.
func (a *GraphQLAdapter) Execute(ctx context.Context, endpoint string, query GraphQLQuery) (GraphQLResult, error) {
	response, err := a.Do(ctx, Request{
		URL:     endpoint,
		Headers: query.Headers,
		Metadata: map[string]any{
			"query":          query.Query,
			"operation_name": query.OperationName,
			"variables":      query.Variables,
		},
	})
	if err != nil {
		return GraphQLResult{}, err
	}
	if err := CheckStatus(KindGraphQL, response); err != nil {
		return GraphQLResult{Response: response}, err
	}

	var envelope struct {
		Data       json.RawMessage  `json:"data"`
		Errors     []map[string]any `json:"errors"`
		Extensions map[string]any   `json:"extensions"`
	}
	if err := json.Unmarshal(response.Body, &envelope); err != nil {
		return GraphQLResult{Response: response}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode graphql response",
			http.StatusBadGateway,
			map[string]any{"adapter": KindGraphQL, "status_code": response.StatusCode},
		)
	}
	result := GraphQLResult{
		Data:       envelope.Data,
		Errors:     decodeGraphQLErrors(envelope.Errors),
		Extensions: envelope.Extensions,
		Response:   response,
	}
	if len(result.Errors) > 0 {
		return result, transportError(
			"transport: graphql operation returned errors",
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{
				"adapter":        KindGraphQL,
				"operation_name": query.OperationName,
				"errors":         graphQLErrorMessages(result.Errors),
			},
		)
	}
	return result, nil
}

func (a *GraphQLAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.REST == nil {
		return Response{}, transportError(
			"transport: graphql adapter requires a rest adapter",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindGraphQL},
		)
	}

	endpoint := strings.TrimSpace(req.URL)
	if endpoint == "" {
		endpoint = a.Endpoint
	}
	if endpoint == "" {
		return Response{}, transportError(
			"transport: graphql endpoint is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL},
		)
	}

	query, ok := readGraphQLQuery(req)
	if !ok {
		return Response{}, transportError(
			"transport: graphql query is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}
	payload := map[string]any{"query": query}
	if operationName := readGraphQLOperationName(req.Metadata); operationName != "" {
		payload["operationName"] = operationName
	}
	if variables, ok := readGraphQLVariables(req.Metadata); ok {
		payload["variables"] = variables
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: marshal graphql payload",
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for key, value := range req.Headers {
		headers[key] = value
	}

	response, err := a.REST.Do(ctx, Request{
		Method:               http.MethodPost,
		URL:                  endpoint,
		Headers:              headers,
		Body:                 body,
		Metadata:             req.Metadata,
		Timeout:              req.Timeout,
		MaxResponseBodyBytes: req.MaxResponseBodyBytes,
	})
	if err != nil {
		return Response{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: graphql request failed",
			http.StatusBadGateway,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}
	response.Metadata = ensureMetadata(response.Metadata)
	response.Metadata["kind"] = KindGraphQL
	return response, nil
}

func readGraphQLQuery(req Request) (string, bool) {
	if req.Metadata != nil {
		if query := strings.TrimSpace(fmt.Sprint(req.Metadata["query"])); query != "" && query != "<nil>" {
			return query, true
		}
	}
	query := strings.TrimSpace(string(req.Body))
	return query, query != ""
}

func readGraphQLOperationName(metadata map[string]any) string {
	value := strings.TrimSpace(fmt.Sprint(metadata["operation_name"]))
	if value == "" || value == "<nil>" {
		return ""
	}
	return value
}

func readGraphQLVariables(metadata map[string]any) (map[string]any, bool) {
	typed, ok := metadata["variables"].(map[string]any)
	if !ok || typed == nil {
		return nil, false
	}
	cloned := make(map[string]any, len(typed))
	for key, item := range typed {
		cloned[key] = item
	}
	return cloned, true
}

func decodeGraphQLErrors(raw []map[string]any) []GraphQLError {
	if len(raw) == 0 {
		return nil
	}
	out := make([]GraphQLError, 0, len(raw))
	for _, item := range raw {
		entry := GraphQLError{Message: strings.TrimSpace(fmt.Sprint(item["message"]))}
		if path, ok := item["path"].([]any); ok {
			entry.Path = path
		}
		if extensions, ok := item["extensions"].(map[string]any); ok {
			if code, ok := extensions["code"].(string); ok {
				entry.Code = code
			}
		}
		out = append(out, entry)
	}
	return out
}

func graphQLErrorMessages(errs []GraphQLError) []string {
	messages := make([]string, 0, len(errs))
	for _, entry := range errs {
		message := entry.Message
		if entry.Code != "" {
			message = entry.Code + ": " + message
		}
		messages = append(messages, message)
	}
	return messages
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}

var _ Adapter = (*GraphQLAdapter)(nil)
