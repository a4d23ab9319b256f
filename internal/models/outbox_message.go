package models

import (
	"time"

	"github.com/google/uuid"
)

// OutboxMessage 待投递的出站通知，与业务变更同事务写入
type OutboxMessage struct {
	ID          uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	AggregateID uuid.UUID  `gorm:"type:varchar(36);index;not null" json:"aggregate_id"`
	Topic       string     `gorm:"type:varchar(128);not null" json:"topic"`
	Key         string     `gorm:"type:varchar(64);not null" json:"key"` // 下游按 key 去重
	Payload     string     `gorm:"type:text;not null" json:"payload"`
	Status      string     `gorm:"type:varchar(16);index;not null" json:"status"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	SentAt      *time.Time `json:"sent_at"`
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
