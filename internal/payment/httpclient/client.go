package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrConfigInvalid   = errors.New("gateway client config invalid")
	ErrRequestFailed   = errors.New("gateway request failed")
	ErrRequestRejected = errors.New("gateway request rejected")
	ErrResponseInvalid = errors.New("gateway response invalid")
)

const (
	defaultTimeout      = 12 * time.Second
	defaultRetryBackoff = 200 * time.Millisecond
	maxErrorBodyLength  = 512
)

// Options 网关 HTTP 客户端配置
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
}

// Client 带有超时与瞬时错误重试的 JSON 客户端
type Client struct {
	baseURL      string
	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
	http         *http.Client
}

// StatusError 网关返回的非 2xx 响应
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway status %d: %s", e.StatusCode, e.Body)
}

// New 创建客户端
func New(options Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(options.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: base url is invalid", ErrConfigInvalid)
	}
	client := &Client{
		baseURL:      baseURL,
		timeout:      options.Timeout,
		maxRetries:   options.MaxRetries,
		retryBackoff: options.RetryBackoff,
		http:         options.HTTPClient,
	}
	if client.timeout <= 0 {
		client.timeout = defaultTimeout
	}
	if client.maxRetries < 0 {
		client.maxRetries = 0
	}
	if client.retryBackoff <= 0 {
		client.retryBackoff = defaultRetryBackoff
	}
	if client.http == nil {
		client.http = &http.Client{Timeout: client.timeout}
	}
	return client, nil
}

// IdempotencyKeyHeader 网关按该请求头去重创建类请求
const IdempotencyKeyHeader = "Idempotency-Key"

type requestOptions struct {
	idempotencyKey string
}

// RequestOption 单次请求选项
type RequestOption func(*requestOptions)

// WithIdempotencyKey 为创建类请求附带幂等键，只有带键的非幂等请求才会重试
func WithIdempotencyKey(key string) RequestOption {
	return func(o *requestOptions) {
		o.idempotencyKey = strings.TrimSpace(key)
	}
}

// DoJSON 发送 JSON 请求，仅在网络错误与 5xx 时重试，4xx 直接返回 ErrRequestRejected
// POST 等非幂等方法未带幂等键时只发送一次
func (c *Client) DoJSON(ctx context.Context, method, endpoint, apiKey string, payload interface{}, opts ...RequestOption) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var options requestOptions
	for _, opt := range opts {
		opt(&options)
	}
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal request failed", ErrRequestFailed)
		}
		body = encoded
	}

	maxRetries := c.maxRetries
	if !idempotentMethod(method) && options.idempotencyKey == "" {
		maxRetries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, time.Duration(attempt)*c.retryBackoff); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
			}
		}
		respBody, err := c.do(ctx, method, endpoint, apiKey, body, options)
		if err == nil {
			return respBody, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func idempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func (c *Client) do(ctx context.Context, method, endpoint, apiKey string, body []byte, options requestOptions) ([]byte, error) {
	ctx, cancel := withDefaultTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(apiKey))
	}
	if options.idempotencyKey != "" {
		req.Header.Set(IdempotencyKeyHeader, options.idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request failed: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, newStatusError(resp.StatusCode, respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w", ErrRequestRejected, newStatusError(resp.StatusCode, respBody))
	}
	return respBody, nil
}

func retryable(err error) bool {
	return errors.Is(err, ErrRequestFailed)
}

func newStatusError(statusCode int, body []byte) *StatusError {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodyLength {
		text = text[:maxErrorBodyLength]
	}
	return &StatusError{StatusCode: statusCode, Body: text}
}

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
