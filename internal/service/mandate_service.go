package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/models"
	"github.com/caz-payments/internal/payment/directdebit"
	"github.com/caz-payments/internal/repository"

	"github.com/google/uuid"
)

// MandateService 直接借记授权服务
type MandateService struct {
	repo             repository.MandateRepository
	gateway          MandateGateway
	defaultReturnURL string
}

// NewMandateService 创建授权服务
func NewMandateService(repo repository.MandateRepository, gateway MandateGateway, defaultReturnURL string) *MandateService {
	return &MandateService{
		repo:             repo,
		gateway:          gateway,
		defaultReturnURL: strings.TrimSpace(defaultReturnURL),
	}
}

// CreateMandate 在网关创建授权并保存
func (s *MandateService) CreateMandate(ctx context.Context, zoneID uuid.UUID, returnURL string) (*models.Mandate, error) {
	if zoneID == uuid.Nil {
		return nil, validationError("clean_air_zone_id is required")
	}
	returnURL = strings.TrimSpace(returnURL)
	if returnURL == "" {
		returnURL = s.defaultReturnURL
	}
	parsed, err := url.ParseRequestURI(returnURL)
	if err != nil || parsed.Host == "" {
		return nil, validationError("return_url is invalid")
	}

	reference := generateMandateReference(time.Now())
	log := paymentLogger("clean_air_zone_id", zoneID, "reference", reference)
	result, err := s.gateway.CreateMandate(ctx, zoneID, reference, returnURL)
	if err != nil {
		log.Warnw("mandate_create_gateway_failed", "error", err)
		return nil, err
	}

	mandate := &models.Mandate{
		ID:                       uuid.New(),
		PaymentProviderMandateID: result.MandateID,
		CleanAirZoneID:           zoneID,
		Reference:                reference,
		Status:                   string(result.Status),
		ReturnURL:                returnURL,
		NextURL:                  result.NextURL,
	}
	if err := s.repo.Create(mandate); err != nil {
		log.Errorw("mandate_persist_failed", "mandate_id", result.MandateID, "error", err)
		return nil, err
	}
	log.Infow("mandate_created", "mandate_id", mandate.PaymentProviderMandateID, "status", mandate.Status)
	return mandate, nil
}

// ListMandates 列出收费区授权，非终态从网关刷新
func (s *MandateService) ListMandates(ctx context.Context, zoneID uuid.UUID) ([]models.Mandate, error) {
	if zoneID == uuid.Nil {
		return nil, validationError("clean_air_zone_id is required")
	}
	mandates, err := s.repo.ListByZone(zoneID)
	if err != nil {
		return nil, err
	}
	for idx := range mandates {
		s.refresh(ctx, &mandates[idx])
	}
	return mandates, nil
}

// EnsureActive 校验授权属于该收费区且处于 ACTIVE
func (s *MandateService) EnsureActive(ctx context.Context, zoneID uuid.UUID, providerMandateID string) error {
	mandate, err := s.repo.GetByProviderID(providerMandateID)
	if err != nil {
		return err
	}
	if mandate == nil || mandate.CleanAirZoneID != zoneID {
		return fmt.Errorf("%w: %w", ErrMandateNotActive, ErrMandateNotFound)
	}
	s.refresh(ctx, mandate)
	if mandate.Status != constants.MandateStatusActive {
		return fmt.Errorf("%w: %s is %s", ErrMandateNotActive, providerMandateID, mandate.Status)
	}
	return nil
}

// refresh 刷新非终态授权，网关失败时沿用本地状态
func (s *MandateService) refresh(ctx context.Context, mandate *models.Mandate) {
	if directdebit.MandateStatus(mandate.Status).IsFinal() {
		return
	}
	log := paymentLogger("mandate_id", mandate.PaymentProviderMandateID, "clean_air_zone_id", mandate.CleanAirZoneID)
	latest, err := s.gateway.GetMandate(ctx, mandate.CleanAirZoneID, mandate.PaymentProviderMandateID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotConfigured) {
			log.Errorw("mandate_refresh_credential_missing", "error", err)
		} else {
			log.Warnw("mandate_refresh_failed", "error", err)
		}
		return
	}
	status := string(latest.Status)
	if status == mandate.Status {
		return
	}
	if err := s.repo.UpdateStatus(mandate.ID, status); err != nil {
		log.Warnw("mandate_status_update_failed", "status", status, "error", err)
		return
	}
	log.Infow("mandate_status_changed", "from", mandate.Status, "to", status)
	mandate.Status = status
}

func generateMandateReference(now time.Time) string {
	return fmt.Sprintf("CAZDD%s%s", now.UTC().Format("060102"), randNumeric(6))
}
