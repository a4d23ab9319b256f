package service

import (
	"errors"
	"fmt"

	"github.com/caz-payments/internal/credentials"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrInconsistentZone        = fmt.Errorf("%w: entrant payments must belong to exactly one clean air zone", ErrValidation)
	ErrExternalPaymentCreation = errors.New("external payment creation failed")
	ErrPaymentInitiationFailed = errors.New("payment initiation failed")
	ErrUnmappedExternalStatus  = errors.New("unmapped external payment status")
	ErrIllegalStatusTransition = errors.New("illegal status transition")
	ErrCredentialNotConfigured = credentials.ErrCredentialNotConfigured
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentNotSubmitted     = errors.New("payment has no external id")
	ErrPaymentStateConflict    = errors.New("payment state changed concurrently")
	ErrEntrantPaymentNotFound  = errors.New("entrant payment not found")
	ErrMandateNotFound         = errors.New("mandate not found")
	ErrMandateNotActive        = errors.New("mandate not active")
	ErrPaymentMethodInvalid    = errors.New("payment method not supported")
	ErrGatewayConfigInvalid    = errors.New("payment gateway config invalid")
	ErrGatewayRequestFailed    = errors.New("payment gateway request failed")
	ErrGatewayRequestRejected  = errors.New("payment gateway rejected request")
	ErrGatewayResponseInvalid  = errors.New("payment gateway response invalid")
)

// IllegalStatusTransitionError 非法状态迁移
type IllegalStatusTransitionError struct {
	From string
	To   string
}

func (e *IllegalStatusTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition from %s to %s", e.From, e.To)
}

// Is 支持 errors.Is(err, ErrIllegalStatusTransition)
func (e *IllegalStatusTransitionError) Is(target error) bool {
	return target == ErrIllegalStatusTransition
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
