package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const KindREST = "rest"

const defaultRESTClientTimeout = 30 * time.Second
const defaultRESTResponseBodyLimit int64 = 10 << 20 // 10 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

// Do sends req and returns the buffered response. Transport failures and
// oversized bodies are errors; non-2xx statuses are not, see CheckStatus.
func (a *RESTAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.Client == nil {
		return Response{}, transportError(
			"transport: rest adapter requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindREST},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newHTTPRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}
	target := map[string]any{
		"adapter": KindREST,
		"method":  httpReq.Method,
		"host":    httpReq.URL.Host,
	}

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryExternal,
			"transport: execute http request", http.StatusBadGateway, target)
	}
	defer httpRes.Body.Close()

	limit := resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)
	body, err := readLimited(httpRes.Body, limit)
	if err != nil {
		target["status_code"] = httpRes.StatusCode
		target["response_limit_b"] = limit
		return Response{}, transportWrapError(err, goerrors.CategoryExternal,
			"transport: read response body", http.StatusBadGateway, target)
	}

	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

func (a *RESTAdapter) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return nil, transportError("transport: request url is required",
			goerrors.CategoryBadInput, http.StatusBadRequest, map[string]any{"adapter": KindREST})
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: invalid request url", http.StatusBadRequest, map[string]any{"adapter": KindREST})
	}
	if len(req.Query) > 0 {
		values := target.Query()
		for key, value := range req.Query {
			if key = strings.TrimSpace(key); key != "" {
				values.Set(key, strings.TrimSpace(value))
			}
		}
		target.RawQuery = values.Encode()
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: create http request", http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "method": method})
	}
	setHeaders(httpReq.Header, a.DefaultHeaders)
	setHeaders(httpReq.Header, req.Headers)
	return httpReq, nil
}

var errResponseTooLarge = errors.New("response body exceeds limit")

func readLimited(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errResponseTooLarge
	}
	return data, nil
}

func setHeaders(dst http.Header, values map[string]string) {
	for key, value := range values {
		if key = strings.TrimSpace(key); key != "" {
			dst.Set(key, strings.TrimSpace(value))
		}
	}
}

// CheckStatus turns a non-2xx response into a downstream error carrying the
// status and a bounded excerpt of the body.
func CheckStatus(kind string, res Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	category := goerrors.CategoryExternal
	switch res.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		category = goerrors.CategoryAuth
	case http.StatusTooManyRequests:
		category = goerrors.CategoryRateLimit
	}
	metadata := map[string]any{
		"adapter":     kind,
		"status_code": res.StatusCode,
	}
	if excerpt := bodyExcerpt(res.Body); excerpt != "" {
		metadata["body"] = excerpt
	}
	if retryAfter := strings.TrimSpace(res.Headers["Retry-After"]); retryAfter != "" {
		metadata["retry_after"] = retryAfter
	}
	return transportError(
		fmt.Sprintf("transport: downstream responded with status %d", res.StatusCode),
		category,
		http.StatusBadGateway,
		metadata,
	)
}

func bodyExcerpt(body []byte) string {
	const limit = 256
	excerpt := strings.TrimSpace(string(body))
	if len(excerpt) > limit {
		excerpt = excerpt[:limit]
	}
	return excerpt
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultRESTResponseBodyLimit
}

var _ Adapter = (*RESTAdapter)(nil)
