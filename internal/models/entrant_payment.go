package models

import (
	"time"

	"github.com/google/uuid"
)

// VehicleEntrantPayment 车辆单日入区收费明细，创建后归属唯一的支付
type VehicleEntrantPayment struct {
	ID                    uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"entrant_payment_id"`
	PaymentID             uuid.UUID `gorm:"type:varchar(36);index;not null" json:"payment_id"` // 仅用于关联查询
	CleanZoneID           uuid.UUID `gorm:"type:varchar(36);index;not null" json:"clean_zone_id"`
	VRN                   string    `gorm:"type:varchar(15);index;not null" json:"vrn"`
	TravelDate            time.Time `gorm:"index;not null" json:"travel_date"`
	ChargePaid            int       `gorm:"not null" json:"charge_paid"`
	InternalPaymentStatus string    `gorm:"type:varchar(32);index;not null" json:"internal_payment_status"`
	UpdateActor           string    `gorm:"type:varchar(8);not null" json:"update_actor"` // USER: 随支付对账更新；LA: 单独修正
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TableName 指定表名
func (VehicleEntrantPayment) TableName() string {
	return "vehicle_entrant_payments"
}
