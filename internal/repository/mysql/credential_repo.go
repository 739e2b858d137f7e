package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/storecore/internal/datamodels/tenant"
	"github.com/example/storecore/internal/errs"
)

type credentialRepo struct {
	db *gorm.DB
}

// NewCredentialRepository 创建租户凭据仓储
func NewCredentialRepository(db *gorm.DB) tenant.Repository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) GetByTenant(ctx context.Context, tenantID string) (*tenant.Credential, error) {
	var c tenant.Credential
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("no payment credential for tenant %s", tenantID)
		}
		return nil, errs.Transient(err, "query credential for tenant %s", tenantID)
	}
	return &c, nil
}

// Upsert 按租户覆盖写入，一个租户只保留一条凭据
func (r *credentialRepo) Upsert(ctx context.Context, c *tenant.Credential) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"test_public_key", "test_secret_key",
			"live_public_key", "live_secret_key",
			"webhook_secret", "is_test_mode", "is_configured",
		}),
	}).Create(c).Error
	if err != nil {
		return errs.Transient(err, "upsert credential for tenant %s", c.TenantID)
	}
	return nil
}
