package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/madrasah_billing_server/internal/model"
)

type CallbackEventRepository struct {
	db *gorm.DB
}

func NewCallbackEventRepository(db *gorm.DB) *CallbackEventRepository {
	return &CallbackEventRepository{db: db}
}

func (r *CallbackEventRepository) WithContext(ctx context.Context) *CallbackEventRepository {
	return &CallbackEventRepository{db: r.db.WithContext(ctx)}
}

func (r *CallbackEventRepository) Create(event *model.CallbackEvent) error {
	return r.db.Create(event).Error
}

func (r *CallbackEventRepository) ListByProviderOrder(provider, providerOrderID string) ([]model.CallbackEvent, error) {
	var events []model.CallbackEvent
	err := r.db.Where("provider = ? AND provider_order_id = ?", provider, providerOrderID).
		Order("id ASC").Find(&events).Error
	return events, err
}

func (r *CallbackEventRepository) CountBySignatureValid(valid bool) (int64, error) {
	var count int64
	err := r.db.Model(&model.CallbackEvent{}).Where("signature_valid = ?", valid).Count(&count).Error
	return count, err
}
