package repository

import (
	"errors"
	"time"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxRepository 发件箱数据访问接口
type OutboxRepository interface {
	Create(message *models.OutboxMessage) error
	ListPending(limit int) ([]models.OutboxMessage, error)
	ListByAggregateID(aggregateID uuid.UUID) ([]models.OutboxMessage, error)
	MarkSent(id uuid.UUID, sentAt time.Time) error
	MarkAttemptFailed(id uuid.UUID, lastError string, maxAttempts int) error
	WithTx(tx *gorm.DB) OutboxRepository
}

// GormOutboxRepository GORM 实现
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository 创建发件箱仓库
func NewOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) OutboxRepository {
	if tx == nil {
		return r
	}
	return &GormOutboxRepository{db: tx}
}

// Create 写入待投递消息
func (r *GormOutboxRepository) Create(message *models.OutboxMessage) error {
	if message == nil {
		return errors.New("outbox message is nil")
	}
	if message.Status == "" {
		message.Status = constants.OutboxStatusPending
	}
	return r.db.Create(message).Error
}

// ListPending 按创建顺序获取待投递消息，postgres 下跳过其他实例已锁定的行
func (r *GormOutboxRepository) ListPending(limit int) ([]models.OutboxMessage, error) {
	query := r.db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", constants.OutboxStatusPending).
		Order("created_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var messages []models.OutboxMessage
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// ListByAggregateID 获取聚合的全部消息
func (r *GormOutboxRepository) ListByAggregateID(aggregateID uuid.UUID) ([]models.OutboxMessage, error) {
	var messages []models.OutboxMessage
	if err := r.db.Where("aggregate_id = ?", aggregateID).Order("created_at asc").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkSent 标记投递成功
func (r *GormOutboxRepository) MarkSent(id uuid.UUID, sentAt time.Time) error {
	return r.db.Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   constants.OutboxStatusSent,
			"sent_at":  sentAt,
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
}

// MarkAttemptFailed 记录一次投递失败，达到上限后标记为失败
func (r *GormOutboxRepository) MarkAttemptFailed(id uuid.UUID, lastError string, maxAttempts int) error {
	status := gorm.Expr("status")
	if maxAttempts > 0 {
		status = gorm.Expr("CASE WHEN attempts + 1 >= ? THEN ? ELSE status END", maxAttempts, constants.OutboxStatusFailed)
	}
	return r.db.Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
		}).Error
}
