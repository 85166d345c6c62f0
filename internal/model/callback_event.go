package model

import (
	"time"
)

// CallbackEvent 支付回调审计记录，签名无效的回调同样落库
type CallbackEvent struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"size:20;not null;index" json:"provider"`
	ProviderOrderID string    `gorm:"size:100;index" json:"provider_order_id,omitempty"`
	IntentID        string    `gorm:"size:36;index" json:"intent_id,omitempty"`
	SignatureValid  bool      `gorm:"default:false;index" json:"signature_valid"`
	Outcome         string    `gorm:"size:20" json:"outcome,omitempty"`
	Result          string    `gorm:"size:30;not null;index" json:"result"`
	Detail          string    `gorm:"type:text" json:"detail,omitempty"`
	PayloadSHA256   string    `gorm:"size:64;index" json:"payload_sha256"`
	ArchiveKey      string    `gorm:"size:255" json:"archive_key,omitempty"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}

func (CallbackEvent) TableName() string {
	return "callback_events"
}
