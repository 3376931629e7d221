// Package integration provides the outbound adapters used by service-tasks:
// an HTTP gateway for api-call steps and notification senders.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultCallTimeout = 5 * time.Second

var ErrRelativeEndpoint = errors.New("relative endpoint requires a base URL")

// Request describes one outbound API call.
type Request struct {
	Method   string
	Endpoint string
	Body     any
	Headers  map[string]string
	Timeout  time.Duration // Per attempt; zero means DefaultCallTimeout
}

// Response is the decoded result of a successful call. Data holds the JSON
// body, or the raw text when the body is not JSON.
type Response struct {
	StatusCode int
	Data       any
	Headers    map[string]string
}

// Gateway performs outbound API calls on behalf of api-call steps.
type Gateway interface {
	Call(ctx context.Context, request *Request) (*Response, error)
}

// HTTPError represents a non-2xx answer from the remote service.
type HTTPError struct {
	StatusCode int
	Message    string
	Data       any
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the remote side may succeed on a later attempt.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// RetryConfig bounds the exponential backoff between attempts.
type RetryConfig struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxRetries      uint64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: time.Second,
		Multiplier:      2,
		MaxRetries:      3,
	}
}

// HTTPGateway calls JSON APIs. Relative endpoints are resolved against the
// base URL; network errors and 5xx answers are retried, 4xx answers are not.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	retry   RetryConfig
	logger  *slog.Logger
}

type GatewayOption func(*HTTPGateway)

func WithRetry(retry RetryConfig) GatewayOption {
	return func(g *HTTPGateway) {
		g.retry = retry
	}
}

func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *HTTPGateway) {
		g.client = client
	}
}

func NewHTTPGateway(logger *slog.Logger, baseURL string, opts ...GatewayOption) *HTTPGateway {
	gateway := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		retry:   DefaultRetryConfig(),
		logger:  logger.With("module", "http_gateway"),
	}

	for _, opt := range opts {
		opt(gateway)
	}

	return gateway
}

// ResolveURL returns absolute endpoints unchanged and prefixes relative ones
// with the base URL.
func (g *HTTPGateway) ResolveURL(endpoint string) (string, error) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint, nil
	}

	if g.baseURL == "" {
		return "", fmt.Errorf("%w: %s", ErrRelativeEndpoint, endpoint)
	}

	return g.baseURL + "/" + strings.TrimLeft(endpoint, "/"), nil
}

func (g *HTTPGateway) Call(ctx context.Context, request *Request) (*Response, error) {
	url, err := g.ResolveURL(request.Endpoint)
	if err != nil {
		return nil, err
	}

	var payload []byte

	if request.Body != nil {
		payload, err = json.Marshal(request.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	method := strings.ToUpper(request.Method)
	if method == "" {
		method = http.MethodGet
	}

	logger := g.logger.With("method", method, "url", url)

	operation := func() (*Response, error) {
		response, err := g.do(ctx, method, url, payload, request)
		if err == nil {
			return response, nil
		}

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.Retryable() {
			return nil, backoff.Permanent(err)
		}

		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		logger.WarnContext(ctx, "API call failed, retrying", "error", err, "wait", wait)
	}

	response, err := backoff.RetryNotifyWithData(operation, g.backOff(ctx), notify)
	if err != nil {
		logger.ErrorContext(ctx, "API call failed", "error", err)

		return nil, err
	}

	logger.DebugContext(ctx, "API call succeeded", "status_code", response.StatusCode)

	return response, nil
}

//nolint:ireturn // backoff policies are consumed through the interface
func (g *HTTPGateway) backOff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = g.retry.InitialInterval
	expo.Multiplier = g.retry.Multiplier
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(expo, g.retry.MaxRetries), ctx)
}

func (g *HTTPGateway) do(ctx context.Context, method, url string, payload []byte, request *Request) (*Response, error) {
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	data := decodeBody(respBody)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
			Data:       data,
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[strings.ToLower(key)] = resp.Header.Get(key)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Data:       data,
		Headers:    headers,
	}, nil
}

func decodeBody(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}

	return data
}
