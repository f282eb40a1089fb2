package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/SlpAus/luna-spins-backend/internal/platform/config"
	"github.com/shopspring/decimal"
)

// Charge 是服务商创建的一笔收款
type Charge struct {
	ID          string
	PaymentCode string // 用于展示为文本或二维码的付款码
}

// Status 是一笔收款在服务商处的状态
type Status struct {
	Approved bool
	Raw      string
}

// Provider 是外部支付服务商的边界
type Provider interface {
	CreateCharge(ctx context.Context, amount decimal.Decimal, idempotencyKey string) (Charge, error)
	ChargeStatus(ctx context.Context, chargeID string) (Status, error)
}

// ProviderError 携带服务商返回的错误信息，Message 原样展示给用户
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// ParseAmount 解析配置中的收款金额，金额必须为正数
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("无效的收款金额 %q: %w", s, err)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("收款金额必须为正数: %s", amount)
	}
	return amount, nil
}

// ChargeID 兼容服务商把ID写成数字或字符串两种形式
type ChargeID string

func (id *ChargeID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ChargeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ChargeID(n.String())
	return nil
}

type payer struct {
	Email string `json:"email"`
}

type createRequest struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description"`
	PaymentMethodID   string      `json:"payment_method_id"`
	Payer             payer       `json:"payer"`
	NotificationURL   string      `json:"notification_url,omitempty"`
}

type paymentResponse struct {
	ID                 ChargeID `json:"id"`
	Status             string   `json:"status"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode string `json:"qr_code"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

type errorResponse struct {
	Message string `json:"message"`
	Cause   []struct {
		Description string `json:"description"`
	} `json:"cause"`
}

// HTTPProvider 通过 REST 接口调用支付服务商
type HTTPProvider struct {
	baseURL         string
	accessToken     string
	description     string
	payerEmail      string
	notificationURL string
	client          *http.Client
}

// NewHTTPProvider 根据配置创建服务商客户端，client 为 nil 时按配置的超时创建
func NewHTTPProvider(cfg config.PaymentConfig, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPProvider{
		baseURL:         strings.TrimRight(cfg.ProviderURL, "/"),
		accessToken:     cfg.AccessToken,
		description:     cfg.Description,
		payerEmail:      cfg.PayerEmail,
		notificationURL: cfg.NotificationURL,
		client:          client,
	}
}

func (p *HTTPProvider) CreateCharge(ctx context.Context, amount decimal.Decimal, idempotencyKey string) (Charge, error) {
	body, err := json.Marshal(createRequest{
		TransactionAmount: json.Number(amount.StringFixed(2)),
		Description:       p.description,
		PaymentMethodID:   "pix",
		Payer:             payer{Email: p.payerEmail},
		NotificationURL:   p.notificationURL,
	})
	if err != nil {
		return Charge{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return Charge{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)

	var resp paymentResponse
	if err := p.do(req, &resp); err != nil {
		return Charge{}, err
	}
	if resp.ID == "" {
		return Charge{}, &ProviderError{StatusCode: http.StatusBadGateway, Message: "支付服务返回的数据缺少收款ID"}
	}
	return Charge{ID: string(resp.ID), PaymentCode: resp.PointOfInteraction.TransactionData.QRCode}, nil
}

func (p *HTTPProvider) ChargeStatus(ctx context.Context, chargeID string) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/payments/"+url.PathEscape(chargeID), nil)
	if err != nil {
		return Status{}, err
	}
	var resp paymentResponse
	if err := p.do(req, &resp); err != nil {
		return Status{}, err
	}
	return Status{Approved: resp.Status == "approved", Raw: resp.Status}, nil
}

func (p *HTTPProvider) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("请求支付服务失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("读取支付服务响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析支付服务响应失败: %w", err)
	}
	return nil
}

func errorMessage(status int, data []byte) string {
	var e errorResponse
	if err := json.Unmarshal(data, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if len(e.Cause) > 0 && e.Cause[0].Description != "" {
			return e.Cause[0].Description
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 {
		return text
	}
	return http.StatusText(status)
}

// UserMessage 把错误转换成可以展示给用户的文字，服务商的信息原样保留
func UserMessage(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "支付服务响应超时，请稍后重试"
	}
	return "无法连接支付服务，请检查网络后重试"
}
