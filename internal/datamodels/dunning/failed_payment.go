package dunning

import (
	"context"
	"time"
)

// FailedPayment 失败扣款记录，按 (tenant, invoice) 维度去重：
// 同一租户同一 invoice 的多次失败事件只保留一行，attempt_count 随新事件递增。
// 发票号由各租户自己的处理商账号生成，不同租户可能撞号，唯一键必须带租户
type FailedPayment struct {
	ID            int64     `gorm:"primaryKey" json:"-"`
	TenantID      string    `gorm:"uniqueIndex:uk_failed_payments_tenant_invoice;size:64;not null" json:"tenant_id"`
	CustomerID    string    `gorm:"index;size:64;not null" json:"customer_id"`
	CustomerEmail string    `gorm:"size:255" json:"customer_email"`
	InvoiceID     string    `gorm:"uniqueIndex:uk_failed_payments_tenant_invoice;size:128;not null" json:"invoice_id"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `gorm:"size:10;default:USD" json:"currency"`
	Reason        string    `gorm:"size:255" json:"reason"`
	AttemptCount  int64     `gorm:"not null;default:1" json:"attempt_count"`
	// LastEventID 最近一次计入的处理商事件 ID，
	// 同一事件的重复投递靠它挡住二次递增
	LastEventID string    `gorm:"size:128" json:"-"`
	FailedAt    time.Time `json:"failed_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Record 对外展示用的规范化记录，ListForTenant 会补充客户显示名
type Record struct {
	InvoiceID    string    `json:"invoice_id"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	Email        string    `json:"email"`
	AmountCents  int64     `json:"amount_cents"`
	Currency     string    `json:"currency"`
	Reason       string    `json:"reason"`
	AttemptCount int64     `json:"attempt_count"`
	FailedAt     time.Time `json:"failed_at"`
}

// Normalize 把来源不一、字段残缺的原始记录整理成 Record
// 全函数无失败路径：缺失字段一律给显式默认值，单条坏记录不允许拖垮整个列表
func Normalize(raw map[string]interface{}) Record {
	rec := Record{
		CustomerName: "Unknown customer",
		Currency:     "USD",
		Reason:       "unknown",
		AttemptCount: 1,
	}
	if v, ok := raw["invoice_id"].(string); ok && v != "" {
		rec.InvoiceID = v
	}
	if v, ok := raw["customer_id"].(string); ok && v != "" {
		rec.CustomerID = v
	}
	if v, ok := raw["customer_name"].(string); ok && v != "" {
		rec.CustomerName = v
	}
	if v, ok := raw["email"].(string); ok {
		rec.Email = v
	}
	switch v := raw["amount_cents"].(type) {
	case int64:
		if v > 0 {
			rec.AmountCents = v
		}
	case float64:
		if v > 0 {
			rec.AmountCents = int64(v)
		}
	}
	if v, ok := raw["currency"].(string); ok && v != "" {
		rec.Currency = v
	}
	if v, ok := raw["reason"].(string); ok && v != "" {
		rec.Reason = v
	}
	switch v := raw["attempt_count"].(type) {
	case int64:
		if v > 0 {
			rec.AttemptCount = v
		}
	case float64:
		if v > 0 {
			rec.AttemptCount = int64(v)
		}
	}
	if v, ok := raw["failed_at"].(time.Time); ok {
		rec.FailedAt = v
	}
	return rec
}

// TenantRow ListByTenant 联表查询结果（带客户显示名，可能为空）
type TenantRow struct {
	FailedPayment
	CustomerName string
}

// Repository 失败扣款仓储接口，所有读写都带租户过滤
type Repository interface {
	// Upsert 按 (tenant_id, invoice_id) 去重写入：已存在则刷新现场，
	// 且仅当 last_event_id 变化时 attempt_count+1（同一事件重投不递增）
	Upsert(ctx context.Context, rec *FailedPayment) error
	ListByCustomer(ctx context.Context, tenantID, customerID string) ([]*FailedPayment, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*TenantRow, error)
	// Dismiss 管理员显式清除，返回是否确有记录被删除
	Dismiss(ctx context.Context, tenantID, customerID, invoiceID string) (bool, error)
}
