package order

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status 订单履约状态
type Status string

const (
	StatusPending               Status = "pending"                // 已创建，待支付
	StatusProcessing            Status = "processing"             // 已支付，备货中
	StatusShipped               Status = "shipped"                // 已发货
	StatusDelivered             Status = "delivered"              // 已送达
	StatusCancellationRequested Status = "cancellation_requested" // 客户已申请取消，待管理员审批
	StatusCancelled             Status = "cancelled"              // 已取消（终态）
	StatusRefunded              Status = "refunded"               // 已退款（终态）
)

// PaymentStatus 支付状态，与履约状态相互独立：
// 订单可以在已支付的情况下被取消，退款由人工单独执行
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// transitions 履约状态机：只允许表内列出的转移
var transitions = map[Status][]Status{
	StatusPending:               {StatusProcessing, StatusCancellationRequested},
	StatusProcessing:            {StatusShipped, StatusCancellationRequested},
	StatusShipped:               {StatusDelivered},
	StatusDelivered:             {},
	StatusCancellationRequested: {StatusCancelled},
	StatusCancelled:             {},
	StatusRefunded:              {},
}

// CanTransition 判断履约状态转移是否合法
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal 是否终态
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// Valid 是否已知状态
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Cancellable 当前状态下客户能否发起取消申请
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

// LineItem 订单行
type LineItem struct {
	ProductRef string `json:"product_ref"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

// LineItems 以 JSON 列存储的订单行集合
type LineItems []LineItem

func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		l = LineItems{}
	}
	return json.Marshal(l)
}

func (l *LineItems) Scan(value interface{}) error {
	if value == nil {
		*l = LineItems{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported line items column type %T", value)
	}
	if len(raw) == 0 {
		*l = LineItems{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

// Order 订单模型，业务主键为 (tenant_id, id)
// 所有读写都必须带 tenant_id 过滤，禁止跨租户扫描
type Order struct {
	ID                 string        `gorm:"primaryKey;size:36" json:"id"`
	TenantID           string        `gorm:"index;size:64;not null" json:"tenant_id"`
	CustomerID         string        `gorm:"index;size:64" json:"customer_id"`
	CustomerEmail      string        `gorm:"index;size:255;not null" json:"customer_email"`
	Items              LineItems     `gorm:"type:json" json:"items"`
	ShippingAddress    string        `gorm:"size:512" json:"shipping_address"`
	BillingAddress     string        `gorm:"size:512" json:"billing_address"`
	DeliveryMethod     string        `gorm:"size:64" json:"delivery_method"`
	ShippingCost       int64         `json:"shipping_cost"`
	Total              int64         `gorm:"not null" json:"total"` // 店铺货币单位；支付后不可变
	Currency           string        `gorm:"size:10;default:USD" json:"currency"`
	Status             Status        `gorm:"index;size:32;not null" json:"status"`
	PaymentStatus      PaymentStatus `gorm:"index;size:16;not null" json:"payment_status"`
	ProcessorSessionID string        `gorm:"index;size:128" json:"processor_session_id"`
	ProcessorChargeID  string        `gorm:"size:128" json:"processor_charge_id"`
	Notes              string        `gorm:"type:text" json:"notes"` // 只追加的审计记录
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// AmountCents 服务端权威金额（最小货币单位），直接扣款前的防篡改校验基准
func (o *Order) AmountCents() int64 {
	return o.Total * 100
}

// ListFilter 后台订单查询条件
type ListFilter struct {
	Status Status
	Search string // 按订单号 / 客户邮箱模糊匹配
	Limit  int
	Offset int
}

// PaidRef 标记支付完成时的订单定位方式：会话 ID 或订单 ID 二选一
type PaidRef struct {
	SessionID string
	OrderID   string
}

// Repository 订单仓储接口
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, tenantID, id string) (*Order, error)
	GetBySessionID(ctx context.Context, tenantID, sessionID string) (*Order, error)
	ListByCustomer(ctx context.Context, tenantID, customerID, email string) ([]*Order, error)
	List(ctx context.Context, tenantID string, f ListFilter) ([]*Order, error)
	// MarkPaid 条件更新：仅当 payment_status 尚未为 paid 时置为 paid，
	// 同时只把 pending 推进到 processing，并记录 charge id。
	// 返回本次是否真正发生了状态变更（重放时为 false）。
	MarkPaid(ctx context.Context, tenantID string, ref PaidRef, chargeID string) (bool, error)
	// TransitionStatus 条件更新：仅当当前状态在 from 集合内时转移到 to
	TransitionStatus(ctx context.Context, tenantID, id string, from []Status, to Status) (bool, error)
	AppendNote(ctx context.Context, tenantID, id, note string) error
	Save(ctx context.Context, o *Order) error
	Delete(ctx context.Context, tenantID, id string) error
}
