package service

import (
	"fmt"

	"github.com/caz-payments/internal/constants"
)

var cardStatusMapping = map[string]string{
	constants.ExternalStatusCreated:       constants.InternalStatusInitiated,
	constants.ExternalStatusStarted:       constants.InternalStatusInitiated,
	constants.ExternalStatusSubmitted:     constants.InternalStatusInitiated,
	constants.ExternalStatusCaptured:      constants.InternalStatusPaid,
	constants.ExternalStatusSuccess:       constants.InternalStatusPaid,
	constants.ExternalStatusFailed:        constants.InternalStatusFailed,
	constants.ExternalStatusError:         constants.InternalStatusFailed,
	constants.ExternalStatusCancelled:     constants.InternalStatusCancelled,
	constants.ExternalStatusUserCancel3DS: constants.InternalStatusCancelled,
}

var directDebitStatusMapping = map[string]string{
	constants.ExternalStatusSuccess: constants.InternalStatusPaid,
	constants.ExternalStatusError:   constants.InternalStatusFailed,
}

// MapExternalStatus 按支付方式将外部状态映射为内部状态
func MapExternalStatus(paymentMethod, externalStatus string) (string, error) {
	var table map[string]string
	switch paymentMethod {
	case constants.PaymentMethodCard:
		table = cardStatusMapping
	case constants.PaymentMethodDirectDebit:
		table = directDebitStatusMapping
	default:
		return "", fmt.Errorf("%w: %s", ErrPaymentMethodInvalid, paymentMethod)
	}
	internal, ok := table[externalStatus]
	if !ok {
		return "", fmt.Errorf("%w: %s %q", ErrUnmappedExternalStatus, paymentMethod, externalStatus)
	}
	return internal, nil
}
