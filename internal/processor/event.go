package processor

import (
	"encoding/json"

	"github.com/example/storecore/internal/errs"
)

// EventKind 已知事件的封闭枚举，未识别的类型归入 EventOther（处理时 no-op）
type EventKind int

const (
	EventOther EventKind = iota
	EventCheckoutCompleted
	EventChargeSucceeded
	EventPaymentFailed
)

// Event 解码后的处理商事件，边界处解析一次，后续只消费这个结构
type Event struct {
	ID   string
	Kind EventKind
	Type string // 原始类型串，记日志用

	SessionID string
	ChargeID  string
	InvoiceID string

	// 来自结算会话 metadata，创建会话时由本系统写入
	TenantID string
	OrderID  string

	CustomerID    string
	CustomerEmail string
	AmountCents   int64
	Currency      string
	Reason        string
}

// rawEvent 处理商报文的线格式
type rawEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID             string            `json:"id"`
			Metadata       map[string]string `json:"metadata"`
			Charge         string            `json:"charge"`
			Customer       string            `json:"customer"`
			CustomerEmail  string            `json:"customer_email"`
			Amount         int64             `json:"amount"`
			AmountDue      int64             `json:"amount_due"`
			Currency       string            `json:"currency"`
			FailureMessage string            `json:"failure_message"`
		} `json:"object"`
	} `json:"data"`
}

// DecodeEvent 把原始报文解码为封闭事件联合
// 只有报文本身不是合法 JSON 才算错误；未知类型不是错误，是 EventOther
func DecodeEvent(raw []byte) (*Event, error) {
	var re rawEvent
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "malformed webhook payload")
	}
	if re.ID == "" || re.Type == "" {
		return nil, errs.Validation("webhook payload missing id or type")
	}

	obj := re.Data.Object
	ev := &Event{
		ID:            re.ID,
		Type:          re.Type,
		TenantID:      obj.Metadata["tenant_id"],
		OrderID:       obj.Metadata["order_id"],
		CustomerID:    obj.Customer,
		CustomerEmail: obj.CustomerEmail,
		AmountCents:   obj.Amount,
		Currency:      obj.Currency,
		Reason:        obj.FailureMessage,
	}
	if ev.AmountCents == 0 {
		ev.AmountCents = obj.AmountDue
	}

	switch re.Type {
	case "checkout.session.completed":
		ev.Kind = EventCheckoutCompleted
		ev.SessionID = obj.ID
		ev.ChargeID = obj.Charge
	case "charge.succeeded":
		ev.Kind = EventChargeSucceeded
		ev.ChargeID = obj.ID
	case "invoice.payment_failed":
		ev.Kind = EventPaymentFailed
		ev.InvoiceID = obj.ID
	default:
		ev.Kind = EventOther
	}
	return ev, nil
}

// PeekTenantID 在验签之前从报文里提取租户提示，仅用于定位 webhook 密钥，
// 在签名通过之前这个值不可信，不允许据此做任何变更
func PeekTenantID(raw []byte) string {
	var re rawEvent
	if err := json.Unmarshal(raw, &re); err != nil {
		return ""
	}
	return re.Data.Object.Metadata["tenant_id"]
}
