package customer

import (
	"context"
	"time"
)

// Customer 店铺客户，邮箱在租户内唯一
type Customer struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID  string    `gorm:"uniqueIndex:uk_customers_tenant_email;size:64;not null" json:"tenant_id"`
	Email     string    `gorm:"uniqueIndex:uk_customers_tenant_email;size:255;not null" json:"email"`
	Name      string    `gorm:"size:128" json:"name"`
	Password  string    `gorm:"size:255;not null" json:"-"` // 已加密密码
	Salt      string    `gorm:"size:64" json:"-"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository 客户仓储接口
type Repository interface {
	Create(ctx context.Context, c *Customer) error
	GetByID(ctx context.Context, tenantID, id string) (*Customer, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*Customer, error)
}
