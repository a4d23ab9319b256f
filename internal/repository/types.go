package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentListFilter 查询支付列表的过滤条件
type PaymentListFilter struct {
	Page           int
	PageSize       int
	CleanAirZoneID uuid.UUID
	InternalStatus string
	PaymentMethod  string
	VRN            string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
}

// PaymentStatusUpdate 支付状态变更字段
type PaymentStatusUpdate struct {
	ExternalStatus string
	InternalStatus string
	AuthorisedAt   *time.Time
}

const maxListPageSize = 100

// applyPagination 应用分页参数，页大小上限 maxListPageSize
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if pageSize > maxListPageSize {
		pageSize = maxListPageSize
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}
