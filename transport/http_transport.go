package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
)

const (
	defaultClientTimeout           = 30 * time.Second
	defaultResponseBodyLimit int64 = 64 << 10
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPTransport posts webhook payloads. Any HTTP status is returned as a
// response; only transport level failures are errors.
type HTTPTransport struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewHTTPTransport(client HTTPDoer) *HTTPTransport {
	if client == nil {
		client = &http.Client{
			Timeout: defaultClientTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &HTTPTransport{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

func (t *HTTPTransport) Post(ctx context.Context, req core.DeliveryRequest) (core.DeliveryResponse, error) {
	if t == nil || t.Client == nil {
		return core.DeliveryResponse{}, transportError(
			"transport: http transport requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target := strings.TrimSpace(req.URL)
	parsedURL, err := url.Parse(target)
	if err != nil {
		return core.DeliveryResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid webhook url",
			http.StatusBadRequest,
			map[string]any{"url": target},
		)
	}
	if (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") || parsedURL.Host == "" {
		return core.DeliveryResponse{}, transportError(
			"transport: webhook url must be absolute http or https",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"url": target},
		)
	}

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, parsedURL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return core.DeliveryResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"url": parsedURL.String()},
		)
	}
	for key, value := range t.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpRes, err := t.Client.Do(httpReq)
	if err != nil {
		return core.DeliveryResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"url": parsedURL.String()},
		)
	}
	defer httpRes.Body.Close()

	limit := t.MaxResponseBodyBytes
	if limit <= 0 {
		limit = defaultResponseBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, limit))
	if err != nil {
		return core.DeliveryResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"url": parsedURL.String(), "status_code": httpRes.StatusCode},
		)
	}
	// drain what is left so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(httpRes.Body, limit))

	return core.DeliveryResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
	}, nil
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

var _ core.DeliveryTransport = (*HTTPTransport)(nil)
