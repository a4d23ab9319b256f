package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/caz-payments/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MandateRepository 直接借记授权数据访问接口
type MandateRepository interface {
	Create(mandate *models.Mandate) error
	GetByProviderID(providerMandateID string) (*models.Mandate, error)
	ListByZone(zoneID uuid.UUID) ([]models.Mandate, error)
	UpdateStatus(id uuid.UUID, status string) error
	WithTx(tx *gorm.DB) MandateRepository
}

// GormMandateRepository GORM 实现
type GormMandateRepository struct {
	db *gorm.DB
}

// NewMandateRepository 创建授权仓库
func NewMandateRepository(db *gorm.DB) *GormMandateRepository {
	return &GormMandateRepository{db: db}
}

// WithTx 绑定事务
func (r *GormMandateRepository) WithTx(tx *gorm.DB) MandateRepository {
	if tx == nil {
		return r
	}
	return &GormMandateRepository{db: tx}
}

// Create 创建授权
func (r *GormMandateRepository) Create(mandate *models.Mandate) error {
	return r.db.Create(mandate).Error
}

// GetByProviderID 根据网关授权 ID 获取授权
func (r *GormMandateRepository) GetByProviderID(providerMandateID string) (*models.Mandate, error) {
	providerMandateID = strings.TrimSpace(providerMandateID)
	if providerMandateID == "" {
		return nil, nil
	}
	var mandate models.Mandate
	if err := r.db.Where("payment_provider_mandate_id = ?", providerMandateID).First(&mandate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mandate, nil
}

// ListByZone 获取收费区下全部授权
func (r *GormMandateRepository) ListByZone(zoneID uuid.UUID) ([]models.Mandate, error) {
	var mandates []models.Mandate
	if err := r.db.Where("clean_air_zone_id = ?", zoneID).
		Order("created_at desc").
		Find(&mandates).Error; err != nil {
		return nil, err
	}
	return mandates, nil
}

// UpdateStatus 更新授权状态
func (r *GormMandateRepository) UpdateStatus(id uuid.UUID, status string) error {
	if id == uuid.Nil || status == "" {
		return errors.New("invalid mandate status update params")
	}
	return r.db.Model(&models.Mandate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}
