package public

import (
	"github.com/caz-payments/internal/http/response"
	"github.com/caz-payments/internal/models"

	"github.com/gin-gonic/gin"
)

// CreateMandateRequest 创建直接借记授权请求
type CreateMandateRequest struct {
	ReturnURL string `json:"return_url"`
}

// CreateMandate 为收费区创建直接借记授权
func (h *Handler) CreateMandate(c *gin.Context) {
	zoneID, ok := parseUUIDParam(c, "zone_id")
	if !ok {
		return
	}
	var req CreateMandateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "invalid request body", err)
			return
		}
	}
	mandate, err := h.MandateService.CreateMandate(c.Request.Context(), zoneID, req.ReturnURL)
	if err != nil {
		respondMandateError(c, err)
		return
	}
	response.Success(c, mandate)
}

// ListMandates 查询收费区下的直接借记授权（刷新非终态）
func (h *Handler) ListMandates(c *gin.Context) {
	zoneID, ok := parseUUIDParam(c, "zone_id")
	if !ok {
		return
	}
	mandates, err := h.MandateService.ListMandates(c.Request.Context(), zoneID)
	if err != nil {
		respondMandateError(c, err)
		return
	}
	if mandates == nil {
		mandates = []models.Mandate{}
	}
	response.Success(c, gin.H{
		"clean_air_zone_id": zoneID,
		"mandates":          mandates,
	})
}
