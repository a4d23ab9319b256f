package govukpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caz-payments/internal/payment/httpclient"
)

var (
	ErrConfigInvalid   = errors.New("card gateway config invalid")
	ErrResponseInvalid = errors.New("card gateway response invalid")
	ErrStatusUnknown   = errors.New("card gateway status unknown")
)

// Status 卡支付网关状态
type Status string

const (
	StatusCreated       Status = "CREATED"
	StatusStarted       Status = "STARTED"
	StatusSubmitted     Status = "SUBMITTED"
	StatusCaptured      Status = "CAPTURED"
	StatusSuccess       Status = "SUCCESS"
	StatusFailed        Status = "FAILED"
	StatusCancelled     Status = "CANCELLED"
	StatusError         Status = "ERROR"
	StatusUserCancel3DS Status = "USER_CANCEL_3DS"
)

// Config 卡支付网关配置
type Config struct {
	APIBaseURL   string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
}

// CreateInput 创建卡支付输入，金额单位为便士
type CreateInput struct {
	Amount      int
	Reference   string
	Description string
	ReturnURL   string
}

// CreateResult 创建卡支付返回
type CreateResult struct {
	PaymentID string
	Status    Status
	Message   string
	NextURL   string
	Raw       map[string]interface{}
}

// QueryResult 查询卡支付返回
type QueryResult struct {
	PaymentID string
	Status    Status
	Message   string
	Raw       map[string]interface{}
}

// Client 卡支付网关客户端
type Client struct {
	http *httpclient.Client
}

// NewClient 创建卡支付网关客户端
func NewClient(cfg Config) (*Client, error) {
	cfg.normalize()
	client, err := httpclient.New(httpclient.Options{
		BaseURL:      cfg.APIBaseURL,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		HTTPClient:   cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return &Client{http: client}, nil
}

// ParseStatus 将网关原始状态解析为封闭枚举，未知值返回 ErrStatusUnknown
func ParseStatus(raw string) (Status, error) {
	switch status := Status(strings.ToUpper(strings.TrimSpace(raw))); status {
	case StatusCreated, StatusStarted, StatusSubmitted, StatusCaptured, StatusSuccess,
		StatusFailed, StatusCancelled, StatusError, StatusUserCancel3DS:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrStatusUnknown, raw)
	}
}

// CreatePayment 创建卡支付
func (c *Client) CreatePayment(ctx context.Context, apiKey string, input CreateInput) (*CreateResult, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrConfigInvalid)
	}

	payload := map[string]interface{}{
		"amount":      input.Amount,
		"reference":   strings.TrimSpace(input.Reference),
		"description": strings.TrimSpace(input.Description),
		"return_url":  strings.TrimSpace(input.ReturnURL),
	}
	respBody, err := c.http.DoJSON(ctx, http.MethodPost, "/v1/payments", apiKey, payload, httpclient.WithIdempotencyKey(input.Reference))
	if err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}

	result := &CreateResult{Raw: raw}
	result.PaymentID = strings.TrimSpace(readString(raw, "payment_id"))
	result.Message = strings.TrimSpace(readString(raw, "state", "message"))
	result.NextURL = strings.TrimSpace(readString(raw, "_links", "next_url", "href"))
	if result.PaymentID == "" || result.NextURL == "" {
		return nil, fmt.Errorf("%w: missing payment_id or next_url", ErrResponseInvalid)
	}
	status, err := ParseStatus(readString(raw, "state", "status"))
	if err != nil {
		return nil, err
	}
	result.Status = status
	return result, nil
}

// GetPayment 查询卡支付状态
func (c *Client) GetPayment(ctx context.Context, apiKey, paymentID string) (*QueryResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrConfigInvalid)
	}
	respBody, err := c.http.DoJSON(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), apiKey, nil)
	if err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	status, err := ParseStatus(readString(raw, "state", "status"))
	if err != nil {
		return nil, err
	}
	return &QueryResult{
		PaymentID: paymentID,
		Status:    status,
		Message:   strings.TrimSpace(readString(raw, "state", "message")),
		Raw:       raw,
	}, nil
}

func (c *Config) normalize() {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
}

func validateCreateInput(input CreateInput) error {
	if input.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrConfigInvalid)
	}
	if strings.TrimSpace(input.Reference) == "" {
		return fmt.Errorf("%w: reference is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(input.ReturnURL)); err != nil {
		return fmt.Errorf("%w: return_url is invalid", ErrConfigInvalid)
	}
	return nil
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func readString(raw map[string]interface{}, path ...string) string {
	if raw == nil {
		return ""
	}
	var current interface{} = raw
	for _, seg := range path {
		next, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = next[seg]
	}
	switch value := current.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", value)
	}
}
