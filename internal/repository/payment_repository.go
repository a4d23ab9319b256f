package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentRepository 支付数据访问接口
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id uuid.UUID) (*models.Payment, error)
	GetByExternalID(externalID string) (*models.Payment, error)
	ListDangling(createdBefore time.Time, limit int) ([]models.Payment, error)
	List(filter PaymentListFilter) ([]models.Payment, int64, error)
	UpdateStatusCAS(id uuid.UUID, expectedVersion int, update PaymentStatusUpdate) (bool, error)
	WithTx(tx *gorm.DB) PaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) PaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建支付及其全部入区明细
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	if payment == nil {
		return errors.New("payment is nil")
	}
	return r.db.Create(payment).Error
}

// GetByID 根据 ID 获取支付聚合（含明细）
func (r *GormPaymentRepository) GetByID(id uuid.UUID) (*models.Payment, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var payment models.Payment
	if err := preloadEntrants(r.db).Where("id = ?", id).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByExternalID 根据网关支付 ID 获取支付聚合
func (r *GormPaymentRepository) GetByExternalID(externalID string) (*models.Payment, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, nil
	}
	var payment models.Payment
	result := preloadEntrants(r.db).Where("external_id = ?", externalID).Order("created_at desc").Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// ListDangling 获取已提交网关、内部仍为 INITIATED 且外部状态未终结的超时支付
func (r *GormPaymentRepository) ListDangling(createdBefore time.Time, limit int) ([]models.Payment, error) {
	query := preloadEntrants(r.db).
		Where("external_id IS NOT NULL AND external_id <> ''").
		Where("internal_status = ?", constants.InternalStatusInitiated).
		Where("external_payment_status NOT IN ?", constants.FinishedExternalStatuses()).
		Where("created_at < ?", createdBefore).
		Order("created_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var payments []models.Payment
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// List 分页查询支付列表
func (r *GormPaymentRepository) List(filter PaymentListFilter) ([]models.Payment, int64, error) {
	query := r.db.Model(&models.Payment{})
	if filter.CleanAirZoneID != uuid.Nil {
		query = query.Where("payments.clean_air_zone_id = ?", filter.CleanAirZoneID)
	}
	if filter.InternalStatus != "" {
		query = query.Where("payments.internal_status = ?", filter.InternalStatus)
	}
	if filter.PaymentMethod != "" {
		query = query.Where("payments.payment_method = ?", filter.PaymentMethod)
	}
	if strings.TrimSpace(filter.VRN) != "" {
		query = query.Where(
			"EXISTS (SELECT 1 FROM vehicle_entrant_payments vep WHERE vep.payment_id = payments.id AND vep.vrn "+likeOperator(r.db)+" ? ESCAPE '\\')",
			containsPattern(filter.VRN),
		)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("payments.created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("payments.created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var payments []models.Payment
	if err := preloadEntrants(query).Order("payments.created_at desc").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// UpdateStatusCAS 按版本号条件更新支付状态，版本不匹配时返回 false
func (r *GormPaymentRepository) UpdateStatusCAS(id uuid.UUID, expectedVersion int, update PaymentStatusUpdate) (bool, error) {
	if id == uuid.Nil {
		return false, errors.New("invalid payment id")
	}
	values := map[string]interface{}{
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now(),
	}
	if update.ExternalStatus != "" {
		values["external_payment_status"] = update.ExternalStatus
	}
	if update.InternalStatus != "" {
		values["internal_status"] = update.InternalStatus
	}
	if update.AuthorisedAt != nil {
		values["authorised_at"] = *update.AuthorisedAt
	}
	result := r.db.Model(&models.Payment{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func preloadEntrants(db *gorm.DB) *gorm.DB {
	return db.Preload("EntrantPayments", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("travel_date asc, vrn asc")
	})
}
