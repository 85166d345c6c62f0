package payment

import (
	"context"
	"errors"
)

// 支付渠道标识
const (
	ProviderGatewayA = "gateway_a"
	ProviderGatewayB = "gateway_b"
)

// Outcome 渠道回调的支付结果
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePending Outcome = "pending"
)

var (
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrSignatureInvalid    = errors.New("callback signature invalid")
	ErrUnknownProvider     = errors.New("unknown payment provider")
)

// OrderRequest 下单参数，金额为最小货币单位
type OrderRequest struct {
	Amount            int64
	Currency          string
	MerchantReference string
	Metadata          map[string]string
}

// Order 渠道下单结果，LaunchData 原样返回给客户端用于跳转或拉起支付组件
type Order struct {
	ProviderOrderID string
	LaunchData      map[string]string
}

// VerifiedResult 验签通过的回调内容
type VerifiedResult struct {
	ProviderOrderID       string
	ProviderTransactionID string
	Outcome               Outcome
	MerchantReference     string
	Metadata              map[string]string
}

// Provider 支付渠道适配器，渠道差异只允许出现在实现内部
type Provider interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// VerifyCallback 校验回调签名并解析结果，任何格式错误、缺失签名或签名不匹配都返回 ErrSignatureInvalid
	VerifyCallback(payload []byte, signature string) (*VerifiedResult, error)
	// SignatureHeader 渠道放置签名的请求头
	SignatureHeader() string
}
