package service

import (
	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/models"
)

var allowedStatusTransitions = map[string]map[string]bool{
	constants.InternalStatusNotPaid: {
		constants.InternalStatusInitiated: true,
	},
	constants.InternalStatusInitiated: {
		constants.InternalStatusPaid:      true,
		constants.InternalStatusFailed:    true,
		constants.InternalStatusCancelled: true,
	},
	constants.InternalStatusPaid: {
		constants.InternalStatusRefunded:   true,
		constants.InternalStatusChargeback: true,
	},
}

// ValidateTransition 校验内部状态迁移
func ValidateTransition(from, to string) error {
	if allowedStatusTransitions[from][to] {
		return nil
	}
	return &IllegalStatusTransitionError{From: from, To: to}
}

// transitionAggregate 迁移支付状态，并同步仍处于旧状态的明细
func transitionAggregate(payment *models.Payment, to string) error {
	from := payment.InternalStatus
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	for idx := range payment.EntrantPayments {
		entrant := &payment.EntrantPayments[idx]
		if entrant.InternalPaymentStatus == from && entrant.UpdateActor != constants.UpdateActorLA {
			entrant.InternalPaymentStatus = to
		}
	}
	payment.InternalStatus = to
	return nil
}
