package repository

import (
	"errors"
	"time"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EntrantPaymentRepository 车辆入区明细数据访问接口
type EntrantPaymentRepository interface {
	GetByID(id uuid.UUID) (*models.VehicleEntrantPayment, error)
	ListByPaymentID(paymentID uuid.UUID) ([]models.VehicleEntrantPayment, error)
	PropagateStatus(paymentID uuid.UUID, fromStatus, toStatus string) (int64, error)
	UpdateStatusCAS(id uuid.UUID, fromStatus, toStatus, actor string) (bool, error)
	WithTx(tx *gorm.DB) EntrantPaymentRepository
}

// GormEntrantPaymentRepository GORM 实现
type GormEntrantPaymentRepository struct {
	db *gorm.DB
}

// NewEntrantPaymentRepository 创建入区明细仓库
func NewEntrantPaymentRepository(db *gorm.DB) *GormEntrantPaymentRepository {
	return &GormEntrantPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormEntrantPaymentRepository) WithTx(tx *gorm.DB) EntrantPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormEntrantPaymentRepository{db: tx}
}

// GetByID 根据 ID 获取明细
func (r *GormEntrantPaymentRepository) GetByID(id uuid.UUID) (*models.VehicleEntrantPayment, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var entrant models.VehicleEntrantPayment
	if err := r.db.Where("id = ?", id).First(&entrant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entrant, nil
}

// ListByPaymentID 获取支付下全部明细
func (r *GormEntrantPaymentRepository) ListByPaymentID(paymentID uuid.UUID) ([]models.VehicleEntrantPayment, error) {
	var entrants []models.VehicleEntrantPayment
	if err := r.db.Where("payment_id = ?", paymentID).
		Order("travel_date asc, vrn asc").
		Find(&entrants).Error; err != nil {
		return nil, err
	}
	return entrants, nil
}

// PropagateStatus 将支付状态同步到仍处于旧状态且未被单独修正的明细
func (r *GormEntrantPaymentRepository) PropagateStatus(paymentID uuid.UUID, fromStatus, toStatus string) (int64, error) {
	if paymentID == uuid.Nil || fromStatus == "" || toStatus == "" {
		return 0, errors.New("invalid entrant status propagation params")
	}
	result := r.db.Model(&models.VehicleEntrantPayment{}).
		Where("payment_id = ? AND internal_payment_status = ? AND update_actor = ?", paymentID, fromStatus, constants.UpdateActorUser).
		Updates(map[string]interface{}{
			"internal_payment_status": toStatus,
			"updated_at":              time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// UpdateStatusCAS 按原状态条件更新单条明细
func (r *GormEntrantPaymentRepository) UpdateStatusCAS(id uuid.UUID, fromStatus, toStatus, actor string) (bool, error) {
	if id == uuid.Nil || toStatus == "" {
		return false, errors.New("invalid entrant status update params")
	}
	result := r.db.Model(&models.VehicleEntrantPayment{}).
		Where("id = ? AND internal_payment_status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"internal_payment_status": toStatus,
			"update_actor":            actor,
			"updated_at":              time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
