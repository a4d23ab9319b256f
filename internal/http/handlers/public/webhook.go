package public

import (
	"strings"

	"github.com/caz-payments/internal/http/response"

	"github.com/gin-gonic/gin"
)

// CardCallbackRequest 银行卡网关回调
type CardCallbackRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
}

// HandleCardCallback 处理银行卡网关回调：按网关支付 ID 定位并触发对账
func (h *Handler) HandleCardCallback(c *gin.Context) {
	var req CardCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid callback body", err)
		return
	}
	externalID := strings.TrimSpace(req.PaymentID)
	payment, err := h.PaymentService.RequestReconcile(c.Request.Context(), externalID)
	if err != nil {
		respondPaymentReconcileError(c, err)
		return
	}
	response.Success(c, gin.H{
		"payment_id":      payment.ID,
		"internal_status": payment.InternalStatus,
	})
}
