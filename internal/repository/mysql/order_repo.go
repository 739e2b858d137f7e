package mysql

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/example/storecore/internal/datamodels/order"
	"github.com/example/storecore/internal/errs"
)

type orderRepo struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) order.Repository {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, o *order.Order) error {
	if err := r.db.WithContext(ctx).Create(o).Error; err != nil {
		return errs.Transient(err, "create order")
	}
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, tenantID, id string) (*order.Order, error) {
	var o order.Order
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("order %s not found", id)
		}
		return nil, errs.Transient(err, "query order %s", id)
	}
	return &o, nil
}

func (r *orderRepo) GetBySessionID(ctx context.Context, tenantID, sessionID string) (*order.Order, error) {
	var o order.Order
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND processor_session_id = ?", tenantID, sessionID).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("order for session %s not found", sessionID)
		}
		return nil, errs.Transient(err, "query order by session %s", sessionID)
	}
	return &o, nil
}

func (r *orderRepo) ListByCustomer(ctx context.Context, tenantID, customerID, email string) ([]*order.Order, error) {
	var list []*order.Order
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	// 老订单可能只有邮箱没有客户 ID，两个身份维度都要能命中
	if customerID != "" {
		q = q.Where("customer_id = ? OR LOWER(customer_email) = ?", customerID, strings.ToLower(email))
	} else {
		q = q.Where("LOWER(customer_email) = ?", strings.ToLower(email))
	}
	if err := q.Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, errs.Transient(err, "list orders for customer")
	}
	return list, nil
}

func (r *orderRepo) List(ctx context.Context, tenantID string, f order.ListFilter) ([]*order.Order, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("id LIKE ? OR customer_email LIKE ?", like, like)
	}
	var list []*order.Order
	if err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&list).Error; err != nil {
		return nil, errs.Transient(err, "list orders")
	}
	return list, nil
}

// MarkPaid 幂等置为已支付：
// WHERE 里带 payment_status <> 'paid' 条件，重放的事件不会命中任何行；
// 履约状态只允许从 pending 推到 processing，已发货的订单不会被回拨
func (r *orderRepo) MarkPaid(ctx context.Context, tenantID string, ref order.PaidRef, chargeID string) (bool, error) {
	if ref.SessionID == "" && ref.OrderID == "" {
		return false, errs.Validation("session id or order id is required")
	}
	q := r.db.WithContext(ctx).Model(&order.Order{}).
		Where("tenant_id = ?", tenantID).
		Where("payment_status <> ?", order.PaymentPaid)
	if ref.SessionID != "" {
		q = q.Where("processor_session_id = ?", ref.SessionID)
	} else {
		q = q.Where("id = ?", ref.OrderID)
	}
	updates := map[string]interface{}{
		"payment_status": order.PaymentPaid,
		"status":         gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", order.StatusPending, order.StatusProcessing),
	}
	if chargeID != "" {
		updates["processor_charge_id"] = chargeID
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, errs.Transient(res.Error, "mark order paid")
	}
	return res.RowsAffected > 0, nil
}

func (r *orderRepo) TransitionStatus(ctx context.Context, tenantID, id string, from []order.Status, to order.Status) (bool, error) {
	res := r.db.WithContext(ctx).Model(&order.Order{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Where("status IN ?", from).
		Update("status", to)
	if res.Error != nil {
		return false, errs.Transient(res.Error, "transition order %s to %s", id, to)
	}
	return res.RowsAffected > 0, nil
}

func (r *orderRepo) AppendNote(ctx context.Context, tenantID, id, note string) error {
	res := r.db.WithContext(ctx).Model(&order.Order{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("notes", gorm.Expr(
			"CASE WHEN notes = '' OR notes IS NULL THEN ? ELSE CONCAT(notes, ?, ?) END",
			note, "\n", note,
		))
	if res.Error != nil {
		return errs.Transient(res.Error, "append order note")
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("order %s not found", id)
	}
	return nil
}

func (r *orderRepo) Save(ctx context.Context, o *order.Order) error {
	res := r.db.WithContext(ctx).Model(&order.Order{}).
		Where("tenant_id = ? AND id = ?", o.TenantID, o.ID).
		Updates(map[string]interface{}{
			"customer_email":   o.CustomerEmail,
			"customer_id":      o.CustomerID,
			"shipping_address": o.ShippingAddress,
			"billing_address":  o.BillingAddress,
			"delivery_method":  o.DeliveryMethod,
			"shipping_cost":    o.ShippingCost,
			"total":            o.Total,
			"status":           o.Status,
			"payment_status":   o.PaymentStatus,
			"notes":            o.Notes,
		})
	if res.Error != nil {
		return errs.Transient(res.Error, "save order %s", o.ID)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("order %s not found", o.ID)
	}
	return nil
}

func (r *orderRepo) Delete(ctx context.Context, tenantID, id string) error {
	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&order.Order{})
	if res.Error != nil {
		return errs.Transient(res.Error, "delete order %s", id)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("order %s not found", id)
	}
	return nil
}
