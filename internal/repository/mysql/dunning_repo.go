package mysql

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/storecore/internal/datamodels/dunning"
	"github.com/example/storecore/internal/errs"
)

type dunningRepo struct {
	db *gorm.DB
}

// NewDunningRepository 创建失败扣款仓储
func NewDunningRepository(db *gorm.DB) dunning.Repository {
	return &dunningRepo{db: db}
}

// Upsert 以 (tenant_id, invoice_id) 做唯一键：
// 首次失败插入一行，后续同一发票的失败事件原子地刷新现场；
// attempt_count 只在事件 ID 变化时递增，同一事件的重复投递不会二次计数
func (r *dunningRepo) Upsert(ctx context.Context, rec *dunning.FailedPayment) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "invoice_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"attempt_count": gorm.Expr(
				"CASE WHEN last_event_id = ? THEN attempt_count ELSE attempt_count + 1 END",
				rec.LastEventID),
			"last_event_id": rec.LastEventID,
			"reason":        rec.Reason,
			"amount_cents":  rec.AmountCents,
			"currency":      rec.Currency,
			"failed_at":     rec.FailedAt,
		}),
	}).Create(rec).Error
	if err != nil {
		return errs.Transient(err, "upsert failed payment %s", rec.InvoiceID)
	}
	return nil
}

func (r *dunningRepo) ListByCustomer(ctx context.Context, tenantID, customerID string) ([]*dunning.FailedPayment, error) {
	var list []*dunning.FailedPayment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		Order("failed_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, errs.Transient(err, "list failed payments for customer %s", customerID)
	}
	return list, nil
}

// ListByTenant 带出客户显示名（客户可能已删除，LEFT JOIN 允许为空）
func (r *dunningRepo) ListByTenant(ctx context.Context, tenantID string) ([]*dunning.TenantRow, error) {
	var rows []*dunning.TenantRow
	err := r.db.WithContext(ctx).
		Table("failed_payments").
		Select("failed_payments.*, customers.name AS customer_name").
		Joins("LEFT JOIN customers ON customers.id = failed_payments.customer_id AND customers.tenant_id = failed_payments.tenant_id").
		Where("failed_payments.tenant_id = ?", tenantID).
		Order("failed_payments.failed_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Transient(err, "list failed payments for tenant %s", tenantID)
	}
	return rows, nil
}

func (r *dunningRepo) Dismiss(ctx context.Context, tenantID, customerID, invoiceID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ? AND invoice_id = ?", tenantID, customerID, invoiceID).
		Delete(&dunning.FailedPayment{})
	if res.Error != nil {
		return false, errs.Transient(res.Error, "dismiss failed payment %s", invoiceID)
	}
	return res.RowsAffected > 0, nil
}
