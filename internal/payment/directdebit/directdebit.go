package directdebit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caz-payments/internal/payment/httpclient"
)

var (
	ErrConfigInvalid   = errors.New("direct debit gateway config invalid")
	ErrResponseInvalid = errors.New("direct debit gateway response invalid")
	ErrStatusUnknown   = errors.New("direct debit gateway status unknown")
)

// MandateStatus 授权状态
type MandateStatus string

const (
	MandateStatusPendingCustomerApproval MandateStatus = "PENDING_CUSTOMER_APPROVAL"
	MandateStatusPendingSubmission       MandateStatus = "PENDING_SUBMISSION"
	MandateStatusSubmitted               MandateStatus = "SUBMITTED"
	MandateStatusActive                  MandateStatus = "ACTIVE"
	MandateStatusFailed                  MandateStatus = "FAILED"
	MandateStatusCancelled               MandateStatus = "CANCELLED"
	MandateStatusExpired                 MandateStatus = "EXPIRED"
)

// Outcome 直接借记支付归一后的外部状态，仅有 SUCCESS 与 ERROR 两种
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeError   Outcome = "ERROR"
)

// Config 直接借记网关配置
type Config struct {
	APIBaseURL   string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
}

// Mandate 网关侧授权
type Mandate struct {
	MandateID  string
	ProviderID string
	Reference  string
	Status     MandateStatus
	NextURL    string
}

// Payment 直接借记支付的唯一领域表示
type Payment struct {
	PaymentID string
	Amount    int
	Reference string
	MandateID string
	Status    Outcome
	RawStatus string
}

// CreateMandateInput 创建授权输入
type CreateMandateInput struct {
	Reference   string
	Description string
	ReturnURL   string
}

// CreatePaymentInput 创建直接借记支付输入，金额单位为便士
type CreatePaymentInput struct {
	Amount      int
	Reference   string
	Description string
	MandateID   string
}

type stateResponse struct {
	Status string `json:"status"`
}

type linkResponse struct {
	Href string `json:"href"`
}

type mandateResponse struct {
	MandateID  string        `json:"mandate_id"`
	ProviderID string        `json:"provider_id"`
	Reference  string        `json:"reference"`
	State      stateResponse `json:"state"`
	Links      struct {
		NextURL *linkResponse `json:"next_url"`
	} `json:"_links"`
}

type paymentResponse struct {
	PaymentID string        `json:"payment_id"`
	Amount    int           `json:"amount"`
	Reference string        `json:"reference"`
	MandateID string        `json:"mandate_id"`
	State     stateResponse `json:"state"`
}

// Client 直接借记网关客户端
type Client struct {
	http *httpclient.Client
}

// NewClient 创建直接借记网关客户端
func NewClient(cfg Config) (*Client, error) {
	client, err := httpclient.New(httpclient.Options{
		BaseURL:      strings.TrimSpace(cfg.APIBaseURL),
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

// ParseMandateStatus 解析授权状态
func ParseMandateStatus(raw string) (MandateStatus, error) {
	switch status := MandateStatus(strings.ToUpper(strings.TrimSpace(raw))); status {
	case MandateStatusPendingCustomerApproval, MandateStatusPendingSubmission, MandateStatusSubmitted,
		MandateStatusActive, MandateStatusFailed, MandateStatusCancelled, MandateStatusExpired:
		return status, nil
	default:
		return "", fmt.Errorf("%w: mandate %q", ErrStatusUnknown, raw)
	}
}

// IsFinal 授权是否处于不会再变化的状态
func (s MandateStatus) IsFinal() bool {
	switch s {
	case MandateStatusFailed, MandateStatusCancelled, MandateStatusExpired:
		return true
	default:
		return false
	}
}

// CollapseStatus 将网关支付原始状态归一：PENDING 与 SUCCESS 视为成功，其余已知状态视为错误
func CollapseStatus(raw string) (Outcome, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING", "SUCCESS":
		return OutcomeSuccess, nil
	case "FAILED", "CANCELLED", "ERROR", "EXPIRED":
		return OutcomeError, nil
	default:
		return "", fmt.Errorf("%w: payment %q", ErrStatusUnknown, raw)
	}
}

// CreateMandate 创建授权
func (c *Client) CreateMandate(ctx context.Context, apiKey string, input CreateMandateInput) (*Mandate, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(input.Reference) == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(input.ReturnURL)); err != nil {
		return nil, fmt.Errorf("%w: return_url is invalid", ErrConfigInvalid)
	}
	payload := map[string]string{
		"reference":   strings.TrimSpace(input.Reference),
		"description": strings.TrimSpace(input.Description),
		"return_url":  strings.TrimSpace(input.ReturnURL),
	}
	respBody, err := c.http.DoJSON(ctx, http.MethodPost, "/v1/directdebit/mandates", apiKey, payload, httpclient.WithIdempotencyKey(input.Reference))
	if err != nil {
		return nil, err
	}
	mandate, err := decodeMandate(respBody)
	if err != nil {
		return nil, err
	}
	if mandate.NextURL == "" {
		return nil, fmt.Errorf("%w: missing next_url", ErrResponseInvalid)
	}
	return mandate, nil
}

// GetMandate 查询授权
func (c *Client) GetMandate(ctx context.Context, apiKey, mandateID string) (*Mandate, error) {
	mandateID = strings.TrimSpace(mandateID)
	if mandateID == "" {
		return nil, fmt.Errorf("%w: mandate_id is required", ErrConfigInvalid)
	}
	respBody, err := c.http.DoJSON(ctx, http.MethodGet, "/v1/directdebit/mandates/"+url.PathEscape(mandateID), apiKey, nil)
	if err != nil {
		return nil, err
	}
	return decodeMandate(respBody)
}

// CreatePayment 基于已激活授权创建直接借记支付
func (c *Client) CreatePayment(ctx context.Context, apiKey string, input CreatePaymentInput) (*Payment, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrConfigInvalid)
	}
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrConfigInvalid)
	}
	if strings.TrimSpace(input.MandateID) == "" || strings.TrimSpace(input.Reference) == "" {
		return nil, fmt.Errorf("%w: mandate_id and reference are required", ErrConfigInvalid)
	}
	payload := map[string]interface{}{
		"amount":      input.Amount,
		"reference":   strings.TrimSpace(input.Reference),
		"description": strings.TrimSpace(input.Description),
		"mandate_id":  strings.TrimSpace(input.MandateID),
	}
	respBody, err := c.http.DoJSON(ctx, http.MethodPost, "/v1/directdebit/payments", apiKey, payload, httpclient.WithIdempotencyKey(input.Reference))
	if err != nil {
		return nil, err
	}
	var resp paymentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode payment failed", ErrResponseInvalid)
	}
	if resp.MandateID == "" {
		resp.MandateID = strings.TrimSpace(input.MandateID)
	}
	if resp.Amount == 0 {
		resp.Amount = input.Amount
	}
	return toPayment(resp)
}

// GetPayment 查询直接借记支付
func (c *Client) GetPayment(ctx context.Context, apiKey, paymentID string) (*Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment_id is required", ErrConfigInvalid)
	}
	respBody, err := c.http.DoJSON(ctx, http.MethodGet, "/v1/directdebit/payments/"+url.PathEscape(paymentID), apiKey, nil)
	if err != nil {
		return nil, err
	}
	var resp paymentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode payment failed", ErrResponseInvalid)
	}
	if resp.PaymentID == "" {
		resp.PaymentID = paymentID
	}
	return toPayment(resp)
}

func decodeMandate(body []byte) (*Mandate, error) {
	var resp mandateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode mandate failed", ErrResponseInvalid)
	}
	if strings.TrimSpace(resp.MandateID) == "" {
		return nil, fmt.Errorf("%w: missing mandate_id", ErrResponseInvalid)
	}
	status, err := ParseMandateStatus(resp.State.Status)
	if err != nil {
		return nil, err
	}
	mandate := &Mandate{
		MandateID:  strings.TrimSpace(resp.MandateID),
		ProviderID: strings.TrimSpace(resp.ProviderID),
		Reference:  strings.TrimSpace(resp.Reference),
		Status:     status,
	}
	if resp.Links.NextURL != nil {
		mandate.NextURL = strings.TrimSpace(resp.Links.NextURL.Href)
	}
	return mandate, nil
}

func toPayment(resp paymentResponse) (*Payment, error) {
	if strings.TrimSpace(resp.PaymentID) == "" {
		return nil, fmt.Errorf("%w: missing payment_id", ErrResponseInvalid)
	}
	outcome, err := CollapseStatus(resp.State.Status)
	if err != nil {
		return nil, err
	}
	return &Payment{
		PaymentID: strings.TrimSpace(resp.PaymentID),
		Amount:    resp.Amount,
		Reference: strings.TrimSpace(resp.Reference),
		MandateID: strings.TrimSpace(resp.MandateID),
		Status:    outcome,
		RawStatus: strings.TrimSpace(resp.State.Status),
	}, nil
}
