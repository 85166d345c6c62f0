package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/madrasah_billing_server/internal/model"
)

type PaymentIntentRepository struct {
	db *gorm.DB
}

func NewPaymentIntentRepository(db *gorm.DB) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: db}
}

// WithTx 绑定到事务
func (r *PaymentIntentRepository) WithTx(tx *gorm.DB) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: tx}
}

func (r *PaymentIntentRepository) WithContext(ctx context.Context) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: r.db.WithContext(ctx)}
}

func (r *PaymentIntentRepository) Create(intent *model.PaymentIntent) error {
	return r.db.Create(intent).Error
}

func (r *PaymentIntentRepository) GetByID(id string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	err := r.db.Where("id = ?", id).First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *PaymentIntentRepository) GetByProviderOrder(provider, providerOrderID string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	err := r.db.Where("provider = ? AND provider_order_id = ?", provider, providerOrderID).First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *PaymentIntentRepository) ListByOrganization(orgID int64, page, pageSize int) ([]model.PaymentIntent, int64, error) {
	var intents []model.PaymentIntent
	var total int64

	query := r.db.Model(&model.PaymentIntent{}).Where("organization_id = ?", orgID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&intents).Error
	return intents, total, err
}

// UpdateStateIfPending 仅当当前状态为 pending 时更新，返回受影响行数（0 表示已被其他请求变更）
func (r *PaymentIntentRepository) UpdateStateIfPending(id string, fields map[string]interface{}) (int64, error) {
	result := r.db.Model(&model.PaymentIntent{}).
		Where("id = ? AND state = ?", id, model.IntentPending).
		Updates(fields)
	return result.RowsAffected, result.Error
}
