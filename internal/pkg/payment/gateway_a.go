package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/qs3c/madrasah_billing_server/config"
)

const gatewayASignatureHeader = "X-Gateway-Signature"

// GatewayA 卡/UPI 渠道：订单接口 + HMAC-SHA256 回调签名
type GatewayA struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
}

func NewGatewayA(cfg config.GatewayAConfig, client *http.Client) *GatewayA {
	if client == nil {
		client = &http.Client{Timeout: timeoutOrDefault(cfg.TimeoutSeconds)}
	}
	return &GatewayA{
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    client,
	}
}

func (g *GatewayA) Name() string { return ProviderGatewayA }

func (g *GatewayA) SignatureHeader() string { return gatewayASignatureHeader }

type gatewayAOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type gatewayAOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateOrder 调用渠道订单接口
func (g *GatewayA) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body, err := json.Marshal(gatewayAOrderRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.MerchantReference,
		Notes:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var out gatewayAOrderResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrProviderUnavailable)
	}

	return &Order{
		ProviderOrderID: out.ID,
		LaunchData: map[string]string{
			"order_id":           out.ID,
			"key_id":             g.keyID,
			"amount":             strconv.FormatInt(req.Amount, 10),
			"currency":           req.Currency,
			"merchant_reference": req.MerchantReference,
		},
	}, nil
}

type gatewayACallback struct {
	OrderID           string `json:"order_id"`
	PaymentID         string `json:"payment_id"`
	Status            string `json:"status"`
	Signature         string `json:"signature"`
	MerchantReference string `json:"merchant_reference"`
}

// VerifyCallback 签名可以放在请求头，也可以放在 body 的 signature 字段
func (g *GatewayA) VerifyCallback(payload []byte, signature string) (*VerifiedResult, error) {
	var cb gatewayACallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("%w: malformed payload", ErrSignatureInvalid)
	}
	if cb.OrderID == "" || cb.PaymentID == "" {
		return nil, fmt.Errorf("%w: missing order_id or payment_id", ErrSignatureInvalid)
	}

	if signature == "" {
		signature = cb.Signature
	}
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrSignatureInvalid)
	}

	expected := GatewayASignature(g.keySecret, cb.OrderID, cb.PaymentID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrSignatureInvalid)
	}

	outcome := gatewayAOutcome(cb.Status)

	return &VerifiedResult{
		ProviderOrderID:       cb.OrderID,
		ProviderTransactionID: cb.PaymentID,
		Outcome:               outcome,
		MerchantReference:     cb.MerchantReference,
		Metadata: map[string]string{
			"status": cb.Status,
		},
	}, nil
}

// gatewayAOutcome 未识别的状态按处理中对待
func gatewayAOutcome(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "captured", "paid":
		// 同步跳转回调不带 status
		return OutcomeSuccess
	case "failed":
		return OutcomeFailure
	default:
		return OutcomePending
	}
}

// GatewayASignature hex(HMAC-SHA256("{order_id}|{payment_id}", secret))
func GatewayASignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func timeoutOrDefault(seconds int) time.Duration {
	if seconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(seconds) * time.Second
}
