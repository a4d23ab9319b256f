package models

import (
	"time"

	"github.com/google/uuid"
)

// Mandate 直接借记授权，生命周期独立于支付
type Mandate struct {
	ID                       uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"direct_debit_mandate_id"`
	PaymentProviderMandateID string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_provider_mandate_id"`
	CleanAirZoneID           uuid.UUID `gorm:"type:varchar(36);index;not null" json:"clean_air_zone_id"`
	Reference                string    `gorm:"type:varchar(64);not null" json:"reference"`
	Status                   string    `gorm:"type:varchar(32);index;not null" json:"status"`
	ReturnURL                string    `gorm:"type:text" json:"return_url"`
	NextURL                  string    `gorm:"type:text" json:"next_url"`
	CreatedAt                time.Time `json:"created"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Mandate) TableName() string {
	return "direct_debit_mandates"
}
