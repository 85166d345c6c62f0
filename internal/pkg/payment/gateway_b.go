package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/qs3c/madrasah_billing_server/config"
)

const (
	gatewayBSignatureHeader = "X-VERIFY"
	gatewayBChecksumSep     = "###"
	gatewayBDefaultPayPath  = "/pg/v1/pay"

	gatewayBCodeSuccess = "PAYMENT_SUCCESS"
	gatewayBCodePending = "PAYMENT_PENDING"
)

// GatewayB 钱包渠道：base64 JSON 载荷 + 带密钥索引的 sha256 校验和
type GatewayB struct {
	merchantID   string
	baseURL      string
	payPath      string
	callbackPath string
	redirectURL  string
	callbackURL  string
	saltKeys     map[string]string
	activeIndex  string
	client       *http.Client
}

func NewGatewayB(cfg config.GatewayBConfig, client *http.Client) (*GatewayB, error) {
	if len(cfg.SaltKeys) == 0 {
		return nil, errors.New("gateway_b: no salt keys configured")
	}
	if _, ok := cfg.SaltKeys[cfg.ActiveSaltIndex]; !ok {
		return nil, fmt.Errorf("gateway_b: active salt index %q not configured", cfg.ActiveSaltIndex)
	}

	payPath := cfg.PayPath
	if payPath == "" {
		payPath = gatewayBDefaultPayPath
	}
	if client == nil {
		client = &http.Client{Timeout: timeoutOrDefault(cfg.TimeoutSeconds)}
	}

	keys := make(map[string]string, len(cfg.SaltKeys))
	for k, v := range cfg.SaltKeys {
		keys[k] = v
	}

	return &GatewayB{
		merchantID:   cfg.MerchantID,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		payPath:      payPath,
		callbackPath: cfg.CallbackPath,
		redirectURL:  cfg.RedirectURL,
		callbackURL:  cfg.CallbackURL,
		saltKeys:     keys,
		activeIndex:  cfg.ActiveSaltIndex,
		client:       client,
	}, nil
}

func (g *GatewayB) Name() string { return ProviderGatewayB }

func (g *GatewayB) SignatureHeader() string { return gatewayBSignatureHeader }

type gatewayBPayPayload struct {
	MerchantID            string                    `json:"merchantId"`
	MerchantTransactionID string                    `json:"merchantTransactionId"`
	MerchantUserID        string                    `json:"merchantUserId,omitempty"`
	Amount                int64                     `json:"amount"`
	RedirectURL           string                    `json:"redirectUrl"`
	RedirectMode          string                    `json:"redirectMode"`
	CallbackURL           string                    `json:"callbackUrl"`
	PaymentInstrument     gatewayBPaymentInstrument `json:"paymentInstrument"`
}

type gatewayBPaymentInstrument struct {
	Type string `json:"type"`
}

type gatewayBPayResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		InstrumentResponse    struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

// CreateOrder 渠道订单号即回显的 merchantTransactionId
func (g *GatewayB) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	raw, err := json.Marshal(gatewayBPayPayload{
		MerchantID:            g.merchantID,
		MerchantTransactionID: req.MerchantReference,
		MerchantUserID:        req.Metadata["organization_id"],
		Amount:                req.Amount,
		RedirectURL:           g.redirectURL,
		RedirectMode:          "POST",
		CallbackURL:           g.callbackURL,
		PaymentInstrument:     gatewayBPaymentInstrument{Type: "PAY_PAGE"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pay payload: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(raw)
	checksum := GatewayBChecksum(encoded, g.payPath, g.saltKeys[g.activeIndex], g.activeIndex)

	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pay request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+g.payPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(gatewayBSignatureHeader, checksum)

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

	var out gatewayBPayResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	if !out.Success {
		return nil, fmt.Errorf("%w: code %s", ErrProviderUnavailable, out.Code)
	}
	orderID := out.Data.MerchantTransactionID
	if orderID == "" {
		return nil, fmt.Errorf("%w: empty merchant transaction id", ErrProviderUnavailable)
	}

	return &Order{
		ProviderOrderID: orderID,
		LaunchData: map[string]string{
			"redirect_url":            out.Data.InstrumentResponse.RedirectInfo.URL,
			"merchant_transaction_id": orderID,
		},
	}, nil
}

type gatewayBCallbackEnvelope struct {
	Response string `json:"response"`
}

type gatewayBCallbackPayload struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
	} `json:"data"`
}

// VerifyCallback 签名格式为 hash###index，只比较 hash 部分
func (g *GatewayB) VerifyCallback(payload []byte, signature string) (*VerifiedResult, error) {
	var env gatewayBCallbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Response == "" {
		return nil, fmt.Errorf("%w: malformed payload", ErrSignatureInvalid)
	}

	hash, index, ok := strings.Cut(strings.TrimSpace(signature), gatewayBChecksumSep)
	if !ok || hash == "" || index == "" {
		return nil, fmt.Errorf("%w: malformed checksum", ErrSignatureInvalid)
	}
	salt, ok := g.saltKeys[index]
	if !ok {
		return nil, fmt.Errorf("%w: unknown salt index %q", ErrSignatureInvalid, index)
	}

	expected := gatewayBHash(env.Response, g.callbackPath, salt)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(hash))) != 1 {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrSignatureInvalid)
	}

	decoded, err := base64.StdEncoding.DecodeString(env.Response)
	if err != nil {
		return nil, fmt.Errorf("%w: response is not base64", ErrSignatureInvalid)
	}
	var cb gatewayBCallbackPayload
	if err := json.Unmarshal(decoded, &cb); err != nil {
		return nil, fmt.Errorf("%w: malformed response", ErrSignatureInvalid)
	}
	if cb.Data.MerchantTransactionID == "" {
		return nil, fmt.Errorf("%w: missing merchant transaction id", ErrSignatureInvalid)
	}

	var outcome Outcome
	switch cb.Code {
	case gatewayBCodeSuccess:
		outcome = OutcomeSuccess
	case gatewayBCodePending:
		outcome = OutcomePending
	default:
		outcome = OutcomeFailure
	}

	return &VerifiedResult{
		ProviderOrderID:       cb.Data.MerchantTransactionID,
		ProviderTransactionID: cb.Data.TransactionID,
		Outcome:               outcome,
		MerchantReference:     cb.Data.MerchantTransactionID,
		Metadata: map[string]string{
			"code":  cb.Code,
			"state": cb.Data.State,
		},
	}, nil
}

// GatewayBChecksum hex(sha256(base64Payload + path + salt)) + "###" + index
func GatewayBChecksum(base64Payload, path, salt, index string) string {
	return gatewayBHash(base64Payload, path, salt) + gatewayBChecksumSep + index
}

func gatewayBHash(base64Payload, path, salt string) string {
	sum := sha256.Sum256([]byte(base64Payload + path + salt))
	return hex.EncodeToString(sum[:])
}
