package model

import (
	"time"
)

// 订阅状态
const (
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
	SubscriptionCanceled = "canceled"
	SubscriptionPending  = "pending"
	SubscriptionExpired  = "expired"
)

// Organization 机构（租户），只保留计费相关字段
type Organization struct {
	ID                    int64      `gorm:"primaryKey" json:"id"`
	Name                  string     `gorm:"size:200;not null" json:"name"`
	SubscriptionStatus    string     `gorm:"size:20;default:inactive;index" json:"subscription_status"`
	Plan                  string     `gorm:"size:20" json:"plan"`
	SubscriptionExpiresAt *time.Time `gorm:"index" json:"subscription_expires_at,omitempty"`
	PaymentMethod         string     `gorm:"size:20" json:"payment_method,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}
