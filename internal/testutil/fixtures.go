package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/madrasah_billing_server/config"
	"github.com/qs3c/madrasah_billing_server/internal/model"
)

// TestOrganization 创建测试机构
func TestOrganization(t *testing.T, db *gorm.DB, opts ...func(*model.Organization)) *model.Organization {
	t.Helper()

	org := &model.Organization{
		Name:               fmt.Sprintf("madrasah_%d", time.Now().UnixNano()%100000),
		SubscriptionStatus: model.SubscriptionInactive,
	}

	for _, opt := range opts {
		opt(org)
	}

	if err := db.Create(org).Error; err != nil {
		t.Fatalf("Failed to create test organization: %v", err)
	}

	return org
}

// WithOrgName 设置机构名称
func WithOrgName(name string) func(*model.Organization) {
	return func(o *model.Organization) {
		o.Name = name
	}
}

// WithActiveSubscription 设置为已激活订阅
func WithActiveSubscription(plan string, expiresAt time.Time) func(*model.Organization) {
	return func(o *model.Organization) {
		o.SubscriptionStatus = model.SubscriptionActive
		o.Plan = plan
		o.SubscriptionExpiresAt = &expiresAt
	}
}

// TestIntent 创建测试支付意图
func TestIntent(t *testing.T, db *gorm.DB, orgID int64, opts ...func(*model.PaymentIntent)) *model.PaymentIntent {
	t.Helper()

	id := uuid.NewString()
	intent := &model.PaymentIntent{
		ID:                id,
		OrganizationID:    orgID,
		Plan:              "pro",
		Provider:          "gateway_a",
		ProviderOrderID:   "order_" + id[:8],
		MerchantReference: fmt.Sprintf("mdr_%d_%d_%s", orgID, time.Now().Unix(), id[:8]),
		Amount:            99900,
		Currency:          "INR",
		State:             model.IntentPending,
	}

	for _, opt := range opts {
		opt(intent)
	}

	if err := db.Create(intent).Error; err != nil {
		t.Fatalf("Failed to create test intent: %v", err)
	}

	return intent
}

// WithProviderOrder 设置支付渠道与渠道订单号
func WithProviderOrder(provider, orderID string) func(*model.PaymentIntent) {
	return func(p *model.PaymentIntent) {
		p.Provider = provider
		p.ProviderOrderID = orderID
	}
}

// WithIntentPlan 设置套餐和金额
func WithIntentPlan(plan string, amount int64) func(*model.PaymentIntent) {
	return func(p *model.PaymentIntent) {
		p.Plan = plan
		p.Amount = amount
	}
}

// WithIntentState 设置意图状态
func WithIntentState(state string) func(*model.PaymentIntent) {
	return func(p *model.PaymentIntent) {
		p.State = state
		if state != model.IntentPending {
			now := time.Now().UTC()
			p.CompletedAt = &now
		}
	}
}

// TestConfig 返回测试用配置
func TestConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:      "test-secret",
			ExpireHours: 24,
		},
		Billing: config.BillingConfig{
			Currency:               "INR",
			PeriodDays:             30,
			RenewalMode:            config.RenewalFromNow,
			CheckoutTimeoutSeconds: 2,
			ReferencePrefix:        "mdr_",
			OrphanQueue:            "billing:orphaned_orders",
			LockExpirySeconds:      5,
			Plans: map[string]config.PlanConfig{
				"basic":      {Name: "Basic", PriceMinor: 49900, Currency: "INR"},
				"pro":        {Name: "Pro", PriceMinor: 99900, Currency: "INR"},
				"enterprise": {Name: "Enterprise", PriceMinor: 249900, Currency: "INR"},
			},
		},
		Providers: config.ProvidersConfig{
			GatewayA: config.GatewayAConfig{
				Enabled:        true,
				KeyID:          "key_test",
				KeySecret:      "secret_a",
				TimeoutSeconds: 2,
			},
			GatewayB: config.GatewayBConfig{
				Enabled:         true,
				MerchantID:      "MERCHANTB",
				PayPath:         "/pg/v1/pay",
				RedirectURL:     "https://app.example.com/billing/return",
				CallbackURL:     "https://api.example.com/api/v1/billing/callback/gateway_b",
				SaltKeys:        map[string]string{"1": "salt_b"},
				ActiveSaltIndex: "1",
				TimeoutSeconds:  2,
			},
		},
	}
}
