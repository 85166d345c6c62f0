package dto

import (
	"time"

	"github.com/qs3c/madrasah_billing_server/internal/model"
)

// CheckoutRequest 发起支付请求
type CheckoutRequest struct {
	OrganizationID int64  `json:"organization_id" binding:"required"`
	Plan           string `json:"plan" binding:"required"`
	Provider       string `json:"provider" binding:"required"`
}

// CheckoutResponse 发起支付响应，LaunchData 原样交给前端跳转或拉起支付组件
type CheckoutResponse struct {
	IntentID        string            `json:"intent_id"`
	Provider        string            `json:"provider"`
	ProviderOrderID string            `json:"provider_order_id"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	LaunchData      map[string]string `json:"launch_data"`
}

// PlanInfo 套餐信息
type PlanInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Currency   string `json:"currency"`
}

// IntentInfo 支付意图（返回给前端）
type IntentInfo struct {
	ID              string `json:"id"`
	OrganizationID  int64  `json:"organization_id"`
	Plan            string `json:"plan"`
	Provider        string `json:"provider"`
	ProviderOrderID string `json:"provider_order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	State           string `json:"state"`
	CreatedAt       string `json:"created_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

// SubscriptionInfo 机构当前订阅
type SubscriptionInfo struct {
	OrganizationID int64  `json:"organization_id"`
	Status         string `json:"status"`
	Plan           string `json:"plan,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	PaymentMethod  string `json:"payment_method,omitempty"`
}

// CallbackResponse 回调处理结果
type CallbackResponse struct {
	Result   string `json:"result"`
	IntentID string `json:"intent_id,omitempty"`
	State    string `json:"state,omitempty"`
}

// ListIntentsQuery 账单历史分页参数
type ListIntentsQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// NewIntentInfo 转换支付意图
func NewIntentInfo(p *model.PaymentIntent) *IntentInfo {
	info := &IntentInfo{
		ID:              p.ID,
		OrganizationID:  p.OrganizationID,
		Plan:            p.Plan,
		Provider:        p.Provider,
		ProviderOrderID: p.ProviderOrderID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		State:           p.State,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
	if p.CompletedAt != nil {
		info.CompletedAt = p.CompletedAt.Format(time.RFC3339)
	}
	return info
}

// NewSubscriptionInfo 转换机构订阅信息
func NewSubscriptionInfo(org *model.Organization) *SubscriptionInfo {
	info := &SubscriptionInfo{
		OrganizationID: org.ID,
		Status:         org.SubscriptionStatus,
		Plan:           org.Plan,
		PaymentMethod:  org.PaymentMethod,
	}
	if org.SubscriptionExpiresAt != nil {
		info.ExpiresAt = org.SubscriptionExpiresAt.Format(time.RFC3339)
	}
	return info
}
