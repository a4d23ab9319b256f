package public

import (
	"strings"
	"time"

	handlershared "github.com/caz-payments/internal/http/handlers/shared"
	"github.com/caz-payments/internal/http/response"
	"github.com/caz-payments/internal/models"
	"github.com/caz-payments/internal/repository"
	"github.com/caz-payments/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const travelDateLayout = "2006-01-02"

// CreatePaymentRequest 发起支付请求
type CreatePaymentRequest struct {
	CleanAirZoneID string   `json:"clean_air_zone_id" binding:"required"`
	Amount         int      `json:"amount" binding:"required"`
	Days           []string `json:"days" binding:"required"`
	VRNs           []string `json:"vrns" binding:"required"`
	ReturnURL      string   `json:"return_url" binding:"required"`
	EmailAddress   string   `json:"email_address"`
	PaymentMethod  string   `json:"payment_method"`
	MandateID      string   `json:"mandate_id"`
}

// ListPaymentsQuery 支付列表查询参数
type ListPaymentsQuery struct {
	Page           int    `form:"page"`
	PageSize       int    `form:"page_size"`
	CleanAirZoneID string `form:"clean_air_zone_id"`
	Status         string `form:"status"`
	PaymentMethod  string `form:"payment_method"`
	VRN            string `form:"vrn"`
	CreatedFrom    string `form:"created_from"`
	CreatedTo      string `form:"created_to"`
}

// UpdateEntrantStatusRequest 单条入区明细状态修正请求
type UpdateEntrantStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreatePayment 发起支付
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	zoneID, err := uuid.Parse(strings.TrimSpace(req.CleanAirZoneID))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid clean_air_zone_id", err)
		return
	}
	days := make([]time.Time, 0, len(req.Days))
	for _, raw := range req.Days {
		day, err := time.Parse(travelDateLayout, strings.TrimSpace(raw))
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid travel date, expected YYYY-MM-DD", err)
			return
		}
		days = append(days, day)
	}

	payment, err := h.PaymentService.InitiatePayment(c.Request.Context(), service.ChargeRequest{
		Amount:         req.Amount,
		TravelDates:    days,
		VRNs:           req.VRNs,
		CleanAirZoneID: zoneID,
		ReturnURL:      req.ReturnURL,
		EmailAddress:   req.EmailAddress,
		PaymentMethod:  req.PaymentMethod,
		MandateID:      req.MandateID,
	})
	if err != nil {
		respondPaymentInitiateError(c, err)
		return
	}
	response.Success(c, payment)
}

// GetPayment 查询单笔支付
func (h *Handler) GetPayment(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	payment, err := h.PaymentService.GetPayment(c.Request.Context(), id)
	if err != nil {
		respondPaymentQueryError(c, err)
		return
	}
	response.Success(c, payment)
}

// ListPayments 分页查询支付
func (h *Handler) ListPayments(c *gin.Context) {
	var query ListPaymentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "invalid query", err)
		return
	}
	page, pageSize := normalizePagination(query.Page, query.PageSize)
	filter := repository.PaymentListFilter{
		Page:           page,
		PageSize:       pageSize,
		InternalStatus: query.Status,
		PaymentMethod:  query.PaymentMethod,
		VRN:            query.VRN,
	}
	if raw := strings.TrimSpace(query.CleanAirZoneID); raw != "" {
		zoneID, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid clean_air_zone_id", err)
			return
		}
		filter.CleanAirZoneID = zoneID
	}
	var ok bool
	if filter.CreatedFrom, ok = parseOptionalTime(c, "created_from", query.CreatedFrom); !ok {
		return
	}
	if filter.CreatedTo, ok = parseOptionalTime(c, "created_to", query.CreatedTo); !ok {
		return
	}

	payments, total, err := h.PaymentService.ListPayments(c.Request.Context(), filter)
	if err != nil {
		respondPaymentQueryError(c, err)
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: handlershared.TotalPages(total, pageSize),
	}
	response.SuccessWithPage(c, payments, pagination)
}

// ReconcilePayment 立即向网关同步支付状态
func (h *Handler) ReconcilePayment(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	payment, err := h.PaymentService.Reconcile(c.Request.Context(), id)
	if err != nil {
		respondPaymentReconcileError(c, err)
		return
	}
	response.Success(c, payment)
}

// UpdateEntrantStatus 修正单条入区明细状态（如单日退单）
func (h *Handler) UpdateEntrantStatus(c *gin.Context) {
	id, ok := parseUUIDParam(c, "entrant_id")
	if !ok {
		return
	}
	var req UpdateEntrantStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	entrant, err := h.PaymentService.UpdateEntrantStatus(c.Request.Context(), id, status)
	if err != nil {
		respondEntrantStatusError(c, err)
		return
	}
	response.Success(c, entrant)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil || id == uuid.Nil {
		respondError(c, response.CodeBadRequest, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalTime(c *gin.Context, name, raw string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return &parsed, true
	}
	parsed, err := time.Parse(travelDateLayout, raw)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid "+name, err)
		return nil, false
	}
	return &parsed, true
}
