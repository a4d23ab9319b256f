package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/logger"
	"github.com/caz-payments/internal/metrics"
	"github.com/caz-payments/internal/models"
	"github.com/caz-payments/internal/queue"
	"github.com/caz-payments/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentService 支付服务
type PaymentService struct {
	paymentRepo    repository.PaymentRepository
	entrantRepo    repository.EntrantPaymentRepository
	outboxRepo     repository.OutboxRepository
	builder        *PaymentBuilder
	gateways       map[string]ExternalPaymentGateway
	mandateSvc     *MandateService
	receipts       *ReceiptBuilder
	queueClient    *queue.Client
	danglingMinAge time.Duration
	danglingBatch  int
	now            func() time.Time
}

// PaymentServiceOptions 支付服务依赖
type PaymentServiceOptions struct {
	PaymentRepo        repository.PaymentRepository
	EntrantRepo        repository.EntrantPaymentRepository
	OutboxRepo         repository.OutboxRepository
	Builder            *PaymentBuilder
	CardGateway        ExternalPaymentGateway
	DirectDebitGateway ExternalPaymentGateway
	MandateService     *MandateService
	Receipts           *ReceiptBuilder
	QueueClient        *queue.Client
	DanglingMinAge     time.Duration
	DanglingBatchSize  int
}

// NewPaymentService 创建支付服务
func NewPaymentService(opts PaymentServiceOptions) *PaymentService {
	gateways := make(map[string]ExternalPaymentGateway, 2)
	if opts.CardGateway != nil {
		gateways[constants.PaymentMethodCard] = opts.CardGateway
	}
	if opts.DirectDebitGateway != nil {
		gateways[constants.PaymentMethodDirectDebit] = opts.DirectDebitGateway
	}
	builder := opts.Builder
	if builder == nil {
		builder = NewPaymentBuilder(constants.RemainderPolicyTruncate)
	}
	batch := opts.DanglingBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &PaymentService{
		paymentRepo:    opts.PaymentRepo,
		entrantRepo:    opts.EntrantRepo,
		outboxRepo:     opts.OutboxRepo,
		builder:        builder,
		gateways:       gateways,
		mandateSvc:     opts.MandateService,
		receipts:       opts.Receipts,
		queueClient:    opts.QueueClient,
		danglingMinAge: opts.DanglingMinAge,
		danglingBatch:  batch,
		now:            time.Now,
	}
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// InitiatePayment 构建支付聚合，在网关创建支付后落库
func (s *PaymentService) InitiatePayment(ctx context.Context, req ChargeRequest) (*models.Payment, error) {
	payment, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}
	log := paymentLogger(
		"payment_id", payment.ID,
		"reference", payment.Reference,
		"clean_air_zone_id", payment.CleanAirZoneID,
		"payment_method", payment.PaymentMethod,
	)

	gateway, err := s.gatewayFor(payment.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if payment.IsDirectDebit() {
		if s.mandateSvc == nil {
			return nil, ErrMandateNotActive
		}
		if err := s.mandateSvc.EnsureActive(ctx, payment.CleanAirZoneID, payment.MandateID); err != nil {
			log.Warnw("payment_initiate_mandate_rejected", "mandate_id", payment.MandateID, "error", err)
			return nil, err
		}
	}

	result, err := gateway.CreateExternalPayment(ctx, payment)
	if err != nil {
		metrics.IncPaymentInitiated(payment.PaymentMethod, "error")
		if errors.Is(err, ErrCredentialNotConfigured) {
			log.Errorw("payment_initiate_credential_missing", "error", err)
			return nil, err
		}
		log.Warnw("payment_initiate_gateway_failed", "error", err)
		return nil, fmt.Errorf("%w: %w: %v", ErrPaymentInitiationFailed, ErrExternalPaymentCreation, err)
	}

	now := s.now()
	payment.ExternalID = result.ExternalID
	payment.ExternalPaymentStatus = result.Status
	payment.NextURL = result.NextURL
	payment.SubmittedAt = &now
	if err := transitionAggregate(payment, constants.InternalStatusInitiated); err != nil {
		return nil, err
	}
	if target, err := MapExternalStatus(payment.PaymentMethod, result.Status); err != nil {
		log.Warnw("payment_initiate_status_unmapped", "external_status", result.Status, "error", err)
	} else if target != payment.InternalStatus {
		if err := transitionAggregate(payment, target); err != nil {
			log.Warnw("payment_initiate_transition_rejected", "external_status", result.Status, "error", err)
		} else if target == constants.InternalStatusPaid {
			payment.AuthorisedAt = &now
		}
	}

	// 网关已受理，落库不随请求取消
	persistCtx := context.WithoutCancel(ctx)
	err = models.DB.WithContext(persistCtx).Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.WithTx(tx).Create(payment); err != nil {
			return err
		}
		return s.enqueueReceipt(tx, payment, payment.InternalStatus)
	})
	if err != nil {
		metrics.IncPaymentInitiated(payment.PaymentMethod, "persist_error")
		log.Errorw("payment_initiate_persist_failed", "external_id", payment.ExternalID, "error", err)
		return nil, err
	}

	metrics.IncPaymentInitiated(payment.PaymentMethod, "success")
	log.Infow("payment_initiate_success",
		"external_id", payment.ExternalID,
		"external_status", payment.ExternalPaymentStatus,
		"internal_status", payment.InternalStatus,
		"total_paid", payment.TotalPaid,
		"entrant_count", len(payment.EntrantPayments),
		"email_address", logger.Mask(payment.EmailAddress),
	)
	return payment, nil
}

// GetPayment 获取支付聚合
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// FindByExternalID 按网关支付 ID 获取支付
func (s *PaymentService) FindByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, validationError("external payment id is required")
	}
	payment, err := s.paymentRepo.GetByExternalID(externalID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// ListPayments 分页查询支付
func (s *PaymentService) ListPayments(ctx context.Context, filter repository.PaymentListFilter) ([]models.Payment, int64, error) {
	filter.InternalStatus = strings.ToUpper(strings.TrimSpace(filter.InternalStatus))
	filter.PaymentMethod = strings.ToUpper(strings.TrimSpace(filter.PaymentMethod))
	filter.VRN = strings.ToUpper(strings.Join(strings.Fields(filter.VRN), ""))
	if filter.CreatedFrom != nil && filter.CreatedTo != nil && filter.CreatedTo.Before(*filter.CreatedFrom) {
		return nil, 0, validationError("created_to must not be before created_from")
	}
	return s.paymentRepo.List(filter)
}

// RequestReconcile 网关回调后触发对账：优先入队，队列不可用时同步执行
func (s *PaymentService) RequestReconcile(ctx context.Context, externalID string) (*models.Payment, error) {
	payment, err := s.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	err = s.queueClient.EnqueuePaymentReconcile(queue.PaymentReconcilePayload{
		PaymentID: payment.ID,
		Source:    "card_callback",
	})
	if err == nil {
		paymentLogger("payment_id", payment.ID, "external_id", externalID).Infow("reconcile_enqueued")
		return payment, nil
	}
	if !errors.Is(err, queue.ErrQueueDisabled) {
		paymentLogger("payment_id", payment.ID, "external_id", externalID).Warnw("reconcile_enqueue_failed_fallback_inline", "error", err)
	}
	return s.ReconcilePayment(ctx, payment)
}

func (s *PaymentService) gatewayFor(paymentMethod string) (ExternalPaymentGateway, error) {
	gateway, ok := s.gateways[paymentMethod]
	if !ok || gateway == nil {
		return nil, fmt.Errorf("%w: %s", ErrPaymentMethodInvalid, paymentMethod)
	}
	return gateway, nil
}

// enqueueReceipt 支付成功且留有邮箱时写入收据发件箱
func (s *PaymentService) enqueueReceipt(tx *gorm.DB, payment *models.Payment, status string) error {
	if s.receipts == nil || s.outboxRepo == nil {
		return nil
	}
	if status != constants.InternalStatusPaid || strings.TrimSpace(payment.EmailAddress) == "" {
		return nil
	}
	message, err := s.receipts.OutboxMessage(payment)
	if err != nil {
		return err
	}
	return s.outboxRepo.WithTx(tx).Create(message)
}
