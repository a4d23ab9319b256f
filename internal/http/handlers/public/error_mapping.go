package public

import (
	"errors"

	"github.com/caz-payments/internal/http/response"
	"github.com/caz-payments/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, err)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

// 网关密钥缺失属于部署配置问题，不向调用方暴露细节
var gatewayErrorRules = []mappedHandlerError{
	{target: service.ErrCredentialNotConfigured, code: response.CodeServiceUnavailable, msg: "payment gateway not configured"},
	{target: service.ErrGatewayConfigInvalid, code: response.CodeServiceUnavailable, msg: "payment gateway not configured"},
	{target: service.ErrUnmappedExternalStatus, code: response.CodeBadGateway, msg: "payment gateway returned unknown status"},
	{target: service.ErrGatewayResponseInvalid, code: response.CodeBadGateway, msg: "payment gateway response invalid"},
	{target: service.ErrGatewayRequestRejected, code: response.CodeBadGateway, msg: "payment gateway rejected request"},
	{target: service.ErrGatewayRequestFailed, code: response.CodeBadGateway, msg: "payment gateway request failed"},
}

var paymentInitiateErrorRules = []mappedHandlerError{
	{target: service.ErrPaymentMethodInvalid, code: response.CodeBadRequest, msg: "payment method not supported"},
	{target: service.ErrValidation, code: response.CodeBadRequest, msg: "invalid payment request"},
	{target: service.ErrMandateNotFound, code: response.CodeBadRequest, msg: "mandate not found"},
	{target: service.ErrMandateNotActive, code: response.CodeBadRequest, msg: "mandate not active"},
	{target: service.ErrExternalPaymentCreation, code: response.CodeBadGateway, msg: "payment gateway request failed"},
}

var paymentQueryErrorRules = []mappedHandlerError{
	{target: service.ErrValidation, code: response.CodeBadRequest, msg: "invalid payment query"},
	{target: service.ErrPaymentNotFound, code: response.CodeNotFound, msg: "payment not found"},
}

var paymentReconcileErrorRules = []mappedHandlerError{
	{target: service.ErrPaymentNotFound, code: response.CodeNotFound, msg: "payment not found"},
	{target: service.ErrPaymentNotSubmitted, code: response.CodeConflict, msg: "payment not submitted to gateway"},
	{target: service.ErrPaymentStateConflict, code: response.CodeConflict, msg: "payment changed concurrently, retry later"},
	{target: service.ErrIllegalStatusTransition, code: response.CodeConflict, msg: "illegal payment status transition"},
	{target: service.ErrValidation, code: response.CodeBadRequest, msg: "invalid reconcile request"},
}

var entrantStatusErrorRules = []mappedHandlerError{
	{target: service.ErrEntrantPaymentNotFound, code: response.CodeNotFound, msg: "entrant payment not found"},
	{target: service.ErrIllegalStatusTransition, code: response.CodeConflict, msg: "illegal entrant status transition"},
	{target: service.ErrPaymentStateConflict, code: response.CodeConflict, msg: "entrant payment changed concurrently, retry later"},
	{target: service.ErrValidation, code: response.CodeBadRequest, msg: "invalid entrant status"},
}

var mandateErrorRules = []mappedHandlerError{
	{target: service.ErrValidation, code: response.CodeBadRequest, msg: "invalid mandate request"},
	{target: service.ErrMandateNotFound, code: response.CodeNotFound, msg: "mandate not found"},
}

func respondPaymentInitiateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(paymentInitiateErrorRules, gatewayErrorRules), response.CodeInternal, "payment initiation failed")
}

func respondPaymentQueryError(c *gin.Context, err error) {
	respondWithMappedError(c, err, paymentQueryErrorRules, response.CodeInternal, "payment fetch failed")
}

func respondPaymentReconcileError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(paymentReconcileErrorRules, gatewayErrorRules), response.CodeInternal, "payment reconcile failed")
}

func respondEntrantStatusError(c *gin.Context, err error) {
	respondWithMappedError(c, err, entrantStatusErrorRules, response.CodeInternal, "entrant status update failed")
}

func respondMandateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(mandateErrorRules, gatewayErrorRules), response.CodeInternal, "mandate request failed")
}
