package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/madrasah_billing_server/internal/model"
)

type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// WithTx 绑定到事务
func (r *OrganizationRepository) WithTx(tx *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: tx}
}

func (r *OrganizationRepository) WithContext(ctx context.Context) *OrganizationRepository {
	return &OrganizationRepository{db: r.db.WithContext(ctx)}
}

func (r *OrganizationRepository) Create(org *model.Organization) error {
	return r.db.Create(org).Error
}

func (r *OrganizationRepository) GetByID(id int64) (*model.Organization, error) {
	var org model.Organization
	err := r.db.Where("id = ?", id).First(&org).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *OrganizationRepository) Exists(id int64) (bool, error) {
	var count int64
	err := r.db.Model(&model.Organization{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// ActivateSubscription 支付成功后激活订阅
func (r *OrganizationRepository) ActivateSubscription(id int64, plan, paymentMethod string, expiresAt time.Time) error {
	return r.db.Model(&model.Organization{}).Where("id = ?", id).Updates(map[string]interface{}{
		"subscription_status":     model.SubscriptionActive,
		"plan":                    plan,
		"payment_method":          paymentMethod,
		"subscription_expires_at": expiresAt,
	}).Error
}

// ExpireSubscriptions 将已过期的 active 订阅标记为 expired，返回受影响的机构数
func (r *OrganizationRepository) ExpireSubscriptions(now time.Time) (int64, error) {
	result := r.db.Model(&model.Organization{}).
		Where("subscription_status = ? AND subscription_expires_at IS NOT NULL AND subscription_expires_at < ?", model.SubscriptionActive, now).
		Update("subscription_status", model.SubscriptionExpired)
	return result.RowsAffected, result.Error
}
