package models

import (
	"time"

	"github.com/caz-payments/internal/constants"

	"github.com/google/uuid"
)

// Payment 支付聚合根，独占其下所有车辆入区明细
type Payment struct {
	ID                    uuid.UUID               `gorm:"type:varchar(36);primaryKey" json:"payment_id"`            // 创建时一次性分配
	Reference             string                  `gorm:"type:varchar(32);uniqueIndex;not null" json:"reference"`   // 支付参考号
	ExternalID            string                  `gorm:"type:varchar(64);index" json:"external_id"`                // 网关支付 ID
	ExternalPaymentStatus string                  `gorm:"type:varchar(32);index" json:"external_payment_status"`    // 网关状态
	InternalStatus        string                  `gorm:"type:varchar(32);index;not null" json:"internal_status"`   // 内部状态
	PaymentMethod         string                  `gorm:"type:varchar(32);not null" json:"payment_method"`          // 支付方式
	TotalPaid             int                     `gorm:"not null" json:"total_paid"`                               // 总金额（便士）
	CleanAirZoneID        uuid.UUID               `gorm:"type:varchar(36);index;not null" json:"clean_air_zone_id"` // 收费区
	ReturnURL             string                  `gorm:"type:text" json:"return_url"`                              // 支付完成回跳地址
	NextURL               string                  `gorm:"type:text" json:"next_url"`                                // 网关跳转地址
	EmailAddress          string                  `gorm:"type:varchar(255)" json:"email_address,omitempty"`         // 收据邮箱
	MandateID             string                  `gorm:"type:varchar(64);index" json:"mandate_id,omitempty"`       // 直接借记授权 ID
	Version               int                     `gorm:"not null;default:0" json:"-"`                              // 乐观锁版本
	SubmittedAt           *time.Time              `json:"submitted_at,omitempty"`                                   // 提交网关时间
	AuthorisedAt          *time.Time              `json:"authorised_at,omitempty"`                                  // 支付成功时间
	CreatedAt             time.Time               `gorm:"index" json:"created_at"`
	UpdatedAt             time.Time               `json:"updated_at"`
	EntrantPayments       []VehicleEntrantPayment `gorm:"foreignKey:PaymentID;references:ID" json:"entrant_payments"`
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}

// IsDirectDebit 是否为直接借记支付
func (p *Payment) IsDirectDebit() bool {
	return p != nil && p.PaymentMethod == constants.PaymentMethodDirectDebit
}

// HasExternalID 是否已在网关创建
func (p *Payment) HasExternalID() bool {
	return p != nil && p.ExternalID != ""
}

// SumCharges 汇总所有明细金额
func (p *Payment) SumCharges() int {
	if p == nil {
		return 0
	}
	total := 0
	for _, entrant := range p.EntrantPayments {
		total += entrant.ChargePaid
	}
	return total
}
