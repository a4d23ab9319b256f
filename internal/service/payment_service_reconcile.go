package service

import (
	"context"
	"errors"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/metrics"
	"github.com/caz-payments/internal/models"
	"github.com/caz-payments/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 对账结果
const (
	reconcileOutcomeUnchanged       = "unchanged"
	reconcileOutcomeExternalUpdated = "external_updated"
	reconcileOutcomeTransitioned    = "transitioned"
	reconcileOutcomeError           = "error"
)

// Reconcile 按支付 ID 对账
func (s *PaymentService) Reconcile(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.ReconcilePayment(ctx, payment)
}

// ReconcilePayment 拉取网关状态并同步到支付聚合
func (s *PaymentService) ReconcilePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	outcome, err := s.reconcile(ctx, payment)
	metrics.IncReconciliation(payment.PaymentMethod, outcome)
	if err != nil {
		return payment, err
	}
	return payment, nil
}

func (s *PaymentService) reconcile(ctx context.Context, payment *models.Payment) (string, error) {
	log := paymentLogger(
		"payment_id", payment.ID,
		"external_id", payment.ExternalID,
		"payment_method", payment.PaymentMethod,
	)
	if !payment.HasExternalID() {
		log.Warnw("reconcile_payment_not_submitted")
		return reconcileOutcomeError, ErrPaymentNotSubmitted
	}
	gateway, err := s.gatewayFor(payment.PaymentMethod)
	if err != nil {
		return reconcileOutcomeError, err
	}

	external, err := gateway.FetchExternalStatus(ctx, payment)
	if err != nil {
		log.Warnw("reconcile_fetch_status_failed", "error", err)
		return reconcileOutcomeError, err
	}
	if external == payment.ExternalPaymentStatus {
		log.Debugw("reconcile_status_unchanged", "external_status", external)
		return reconcileOutcomeUnchanged, nil
	}
	internal, err := MapExternalStatus(payment.PaymentMethod, external)
	if err != nil {
		log.Errorw("reconcile_status_unmapped", "external_status", external, "error", err)
		return reconcileOutcomeError, err
	}

	if internal == payment.InternalStatus {
		ok, err := s.paymentRepo.UpdateStatusCAS(payment.ID, payment.Version, repository.PaymentStatusUpdate{
			ExternalStatus: external,
		})
		if err != nil {
			return reconcileOutcomeError, err
		}
		if !ok {
			log.Warnw("reconcile_state_conflict", "expected_version", payment.Version)
			return reconcileOutcomeError, ErrPaymentStateConflict
		}
		log.Infow("reconcile_external_status_updated", "from", payment.ExternalPaymentStatus, "to", external)
		payment.ExternalPaymentStatus = external
		payment.Version++
		return reconcileOutcomeExternalUpdated, nil
	}

	from := payment.InternalStatus
	if err := ValidateTransition(from, internal); err != nil {
		log.Errorw("reconcile_transition_rejected", "external_status", external, "from", from, "to", internal)
		return reconcileOutcomeError, err
	}
	update := repository.PaymentStatusUpdate{
		ExternalStatus: external,
		InternalStatus: internal,
	}
	if internal == constants.InternalStatusPaid {
		now := s.now()
		update.AuthorisedAt = &now
	}

	var propagated int64
	err = models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.paymentRepo.WithTx(tx).UpdateStatusCAS(payment.ID, payment.Version, update)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPaymentStateConflict
		}
		propagated, err = s.entrantRepo.WithTx(tx).PropagateStatus(payment.ID, from, internal)
		if err != nil {
			return err
		}
		return s.enqueueReceipt(tx, payment, internal)
	})
	if err != nil {
		if errors.Is(err, ErrPaymentStateConflict) {
			log.Warnw("reconcile_state_conflict", "expected_version", payment.Version)
		} else {
			log.Errorw("reconcile_persist_failed", "error", err)
		}
		return reconcileOutcomeError, err
	}

	if err := transitionAggregate(payment, internal); err != nil {
		return reconcileOutcomeError, err
	}
	payment.ExternalPaymentStatus = external
	payment.Version++
	if update.AuthorisedAt != nil {
		payment.AuthorisedAt = update.AuthorisedAt
	}
	metrics.IncStatusTransition(from, internal)
	log.Infow("reconcile_status_transitioned",
		"external_status", external,
		"from", from,
		"to", internal,
		"entrants_updated", propagated,
	)
	return reconcileOutcomeTransitioned, nil
}

// UpdateEntrantStatus 单独修正某条入区明细状态，之后不再随支付对账变更
func (s *PaymentService) UpdateEntrantStatus(ctx context.Context, entrantID uuid.UUID, status string) (*models.VehicleEntrantPayment, error) {
	entrant, err := s.entrantRepo.GetByID(entrantID)
	if err != nil {
		return nil, err
	}
	if entrant == nil {
		return nil, ErrEntrantPaymentNotFound
	}
	from := entrant.InternalPaymentStatus
	if err := ValidateTransition(from, status); err != nil {
		return nil, err
	}
	ok, err := s.entrantRepo.UpdateStatusCAS(entrant.ID, from, status, constants.UpdateActorLA)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPaymentStateConflict
	}
	entrant.InternalPaymentStatus = status
	entrant.UpdateActor = constants.UpdateActorLA
	metrics.IncStatusTransition(from, status)
	paymentLogger("payment_id", entrant.PaymentID, "entrant_payment_id", entrant.ID).Infow("entrant_status_overridden",
		"vrn", entrant.VRN,
		"travel_date", entrant.TravelDate.Format("2006-01-02"),
		"from", from,
		"to", status,
	)
	return entrant, nil
}
