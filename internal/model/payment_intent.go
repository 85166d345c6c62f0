package model

import (
	"time"
)

// 支付意图状态
const (
	IntentPending   = "pending"
	IntentCompleted = "completed"
	IntentFailed    = "failed"
)

// PaymentIntent 一次支付尝试的账本记录，创建后只允许一次终态变更，不删除
type PaymentIntent struct {
	ID                    string     `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID        int64      `gorm:"not null;index" json:"organization_id"`
	Plan                  string     `gorm:"size:20;not null" json:"plan"`
	Provider              string     `gorm:"size:20;not null;uniqueIndex:ux_payment_intents_provider_order,priority:1" json:"provider"`
	ProviderOrderID       string     `gorm:"size:100;not null;uniqueIndex:ux_payment_intents_provider_order,priority:2" json:"provider_order_id"`
	MerchantReference     string     `gorm:"size:100;index" json:"merchant_reference"`
	Amount                int64      `gorm:"not null" json:"amount"`
	Currency              string     `gorm:"size:3;not null" json:"currency"`
	State                 string     `gorm:"size:20;not null;default:pending;index" json:"state"`
	ProviderTransactionID string     `gorm:"size:100" json:"provider_transaction_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (PaymentIntent) TableName() string {
	return "payment_intents"
}

// IsTerminal 是否已处于终态
func (p *PaymentIntent) IsTerminal() bool {
	return p.State == IntentCompleted || p.State == IntentFailed
}
