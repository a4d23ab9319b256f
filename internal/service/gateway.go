package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/credentials"
	"github.com/caz-payments/internal/metrics"
	"github.com/caz-payments/internal/models"
	"github.com/caz-payments/internal/payment/directdebit"
	"github.com/caz-payments/internal/payment/govukpay"
	"github.com/caz-payments/internal/payment/httpclient"

	"github.com/google/uuid"
)

// ExternalPaymentResult 网关创建支付结果
type ExternalPaymentResult struct {
	ExternalID string
	Status     string
	NextURL    string
}

// ExternalPaymentGateway 外部支付网关统一能力
type ExternalPaymentGateway interface {
	CreateExternalPayment(ctx context.Context, payment *models.Payment) (*ExternalPaymentResult, error)
	FetchExternalStatus(ctx context.Context, payment *models.Payment) (string, error)
}

// MandateGateway 直接借记授权网关能力
type MandateGateway interface {
	CreateMandate(ctx context.Context, zoneID uuid.UUID, reference, returnURL string) (*directdebit.Mandate, error)
	GetMandate(ctx context.Context, zoneID uuid.UUID, mandateID string) (*directdebit.Mandate, error)
}

// CardGateway 卡支付网关适配
type CardGateway struct {
	client *govukpay.Client
	keys   *credentials.Store
}

// NewCardGateway 创建卡支付网关适配
func NewCardGateway(client *govukpay.Client, keys *credentials.Store) *CardGateway {
	return &CardGateway{client: client, keys: keys}
}

// CreateExternalPayment 在卡支付网关创建支付
func (g *CardGateway) CreateExternalPayment(ctx context.Context, payment *models.Payment) (*ExternalPaymentResult, error) {
	apiKey, err := g.keys.APIKey(ctx, credentials.KindCard, payment.CleanAirZoneID)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	result, err := g.client.CreatePayment(ctx, apiKey, govukpay.CreateInput{
		Amount:      payment.TotalPaid,
		Reference:   payment.Reference,
		Description: constants.PaymentDescription,
		ReturnURL:   payment.ReturnURL,
	})
	metrics.ObserveGatewayCall(constants.PaymentMethodCard, "create_payment", started, err)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	return &ExternalPaymentResult{
		ExternalID: result.PaymentID,
		Status:     string(result.Status),
		NextURL:    result.NextURL,
	}, nil
}

// FetchExternalStatus 查询卡支付网关状态
func (g *CardGateway) FetchExternalStatus(ctx context.Context, payment *models.Payment) (string, error) {
	apiKey, err := g.keys.APIKey(ctx, credentials.KindCard, payment.CleanAirZoneID)
	if err != nil {
		return "", err
	}
	started := time.Now()
	result, err := g.client.GetPayment(ctx, apiKey, payment.ExternalID)
	metrics.ObserveGatewayCall(constants.PaymentMethodCard, "get_payment", started, err)
	if err != nil {
		return "", mapGatewayError(err)
	}
	return string(result.Status), nil
}

// DirectDebitGateway 直接借记网关适配
type DirectDebitGateway struct {
	client *directdebit.Client
	keys   *credentials.Store
}

// NewDirectDebitGateway 创建直接借记网关适配
func NewDirectDebitGateway(client *directdebit.Client, keys *credentials.Store) *DirectDebitGateway {
	return &DirectDebitGateway{client: client, keys: keys}
}

// CreateExternalPayment 基于授权发起直接借记支付
func (g *DirectDebitGateway) CreateExternalPayment(ctx context.Context, payment *models.Payment) (*ExternalPaymentResult, error) {
	apiKey, err := g.keys.APIKey(ctx, credentials.KindDirectDebit, payment.CleanAirZoneID)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	result, err := g.client.CreatePayment(ctx, apiKey, directdebit.CreatePaymentInput{
		Amount:      payment.TotalPaid,
		Reference:   payment.Reference,
		Description: constants.PaymentDescription,
		MandateID:   payment.MandateID,
	})
	metrics.ObserveGatewayCall(constants.PaymentMethodDirectDebit, "create_payment", started, err)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	return &ExternalPaymentResult{
		ExternalID: result.PaymentID,
		Status:     string(result.Status),
	}, nil
}

// FetchExternalStatus 查询直接借记支付状态（已折叠为 SUCCESS/ERROR）
func (g *DirectDebitGateway) FetchExternalStatus(ctx context.Context, payment *models.Payment) (string, error) {
	apiKey, err := g.keys.APIKey(ctx, credentials.KindDirectDebit, payment.CleanAirZoneID)
	if err != nil {
		return "", err
	}
	started := time.Now()
	result, err := g.client.GetPayment(ctx, apiKey, payment.ExternalID)
	metrics.ObserveGatewayCall(constants.PaymentMethodDirectDebit, "get_payment", started, err)
	if err != nil {
		return "", mapGatewayError(err)
	}
	return string(result.Status), nil
}

// CreateMandate 在网关创建授权
func (g *DirectDebitGateway) CreateMandate(ctx context.Context, zoneID uuid.UUID, reference, returnURL string) (*directdebit.Mandate, error) {
	apiKey, err := g.keys.APIKey(ctx, credentials.KindDirectDebit, zoneID)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	mandate, err := g.client.CreateMandate(ctx, apiKey, directdebit.CreateMandateInput{
		Reference:   reference,
		Description: constants.MandateDescription,
		ReturnURL:   returnURL,
	})
	metrics.ObserveGatewayCall(constants.PaymentMethodDirectDebit, "create_mandate", started, err)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	return mandate, nil
}

// GetMandate 查询授权状态
func (g *DirectDebitGateway) GetMandate(ctx context.Context, zoneID uuid.UUID, mandateID string) (*directdebit.Mandate, error) {
	apiKey, err := g.keys.APIKey(ctx, credentials.KindDirectDebit, zoneID)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	mandate, err := g.client.GetMandate(ctx, apiKey, strings.TrimSpace(mandateID))
	metrics.ObserveGatewayCall(constants.PaymentMethodDirectDebit, "get_mandate", started, err)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	return mandate, nil
}

// mapGatewayError 将网关包错误映射为服务层错误
func mapGatewayError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, govukpay.ErrStatusUnknown), errors.Is(err, directdebit.ErrStatusUnknown):
		return fmt.Errorf("%w: %v", ErrUnmappedExternalStatus, err)
	case errors.Is(err, govukpay.ErrConfigInvalid), errors.Is(err, directdebit.ErrConfigInvalid), errors.Is(err, httpclient.ErrConfigInvalid):
		return fmt.Errorf("%w: %v", ErrGatewayConfigInvalid, err)
	case errors.Is(err, httpclient.ErrRequestRejected):
		return fmt.Errorf("%w: %v", ErrGatewayRequestRejected, err)
	case errors.Is(err, govukpay.ErrResponseInvalid), errors.Is(err, directdebit.ErrResponseInvalid), errors.Is(err, httpclient.ErrResponseInvalid):
		return fmt.Errorf("%w: %v", ErrGatewayResponseInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrGatewayRequestFailed, err)
	}
}
