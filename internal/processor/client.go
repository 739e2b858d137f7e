package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/storecore/internal/config"
	"github.com/example/storecore/internal/errs"
)

// SessionItem 结算会话中的一行商品
type SessionItem struct {
	ProductRef string `json:"product_ref"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

// SessionParams 创建结算会话的参数
// Metadata 必须携带 tenant_id / order_id，webhook 回来时靠它路由
type SessionParams struct {
	Items    []SessionItem     `json:"items"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

// Session 处理商返回的结算会话
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ChargeParams 旧版 token 直接扣款参数
type ChargeParams struct {
	AmountCents int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Token       string            `json:"source"`
	Email       string            `json:"receipt_email"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

// Charge 处理商返回的扣款结果
type Charge struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Client 支付处理商的窄接口，本系统只编排不实现支付通道
type Client interface {
	CreateCheckoutSession(ctx context.Context, secretKey string, p SessionParams) (*Session, error)
	CreateCharge(ctx context.Context, secretKey string, p ChargeParams) (*Charge, error)
}

type httpClient struct {
	base string
	hc   *http.Client
}

// NewHTTPClient 创建基于 HTTP 的处理商客户端
func NewHTTPClient(cfg *config.ProcessorConfig) Client {
	return &httpClient{
		base: cfg.APIBase,
		hc:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *httpClient) CreateCheckoutSession(ctx context.Context, secretKey string, p SessionParams) (*Session, error) {
	var out Session
	if err := c.post(ctx, secretKey, "/v1/checkout/sessions", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) CreateCharge(ctx context.Context, secretKey string, p ChargeParams) (*Charge, error) {
	var out Charge
	if err := c.post(ctx, secretKey, "/v1/charges", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) post(ctx context.Context, secretKey, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errs.Wrap(errs.KindValidation, err, "encode processor request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return errs.Transient(err, "build processor request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secretKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return errs.Transient(err, "call processor %s", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errs.Transient(err, "read processor response")
	}

	if resp.StatusCode >= 500 {
		return errs.Transient(fmt.Errorf("status %d", resp.StatusCode), "processor unavailable")
	}
	if resp.StatusCode >= 400 {
		// 处理商拒绝的请求不重试，把上游信息带给调用方排查
		return errs.Validation("processor rejected %s: status %d, body %s", path, resp.StatusCode, truncate(raw, 256))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.Transient(err, "decode processor response")
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
