package tenant

import (
	"context"
	"time"
)

// Mode 密钥环境：测试 / 生产，二者的密钥材料绝不允许混用
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// Credential 租户支付处理商凭据，每个租户一条
// legacy 单密钥对来自早期未区分环境的配置，仅在测试路径上作为兜底
type Credential struct {
	ID              int64     `gorm:"primaryKey" json:"-"`
	TenantID        string    `gorm:"uniqueIndex;size:64;not null" json:"tenant_id"`
	TestPublicKey   string    `gorm:"size:255" json:"test_public_key"`
	TestSecretKey   string    `gorm:"size:255" json:"-"`
	LivePublicKey   string    `gorm:"size:255" json:"live_public_key"`
	LiveSecretKey   string    `gorm:"size:255" json:"-"`
	LegacyPublicKey string    `gorm:"size:255" json:"-"`
	LegacySecretKey string    `gorm:"size:255" json:"-"`
	WebhookSecret   string    `gorm:"size:255" json:"-"`
	IsTestMode      bool      `json:"is_test_mode"`
	IsConfigured    bool      `json:"is_configured"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Resolved 解析完成的一组凭据：mode、公私钥、webhook 密钥来自同一环境
type Resolved struct {
	Mode          Mode
	PublicKey     string
	SecretKey     string
	WebhookSecret string
}

// Repository 凭据仓储接口
type Repository interface {
	GetByTenant(ctx context.Context, tenantID string) (*Credential, error)
	Upsert(ctx context.Context, c *Credential) error
}
