package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/storecore/internal/datamodels/order"
	"github.com/example/storecore/internal/errs"
)

// OrderService 订单台账：状态机转移、后台管理查询、取消审批流
type OrderService struct {
	repo order.Repository
}

// NewOrderService 创建订单服务
func NewOrderService(repo order.Repository) *OrderService {
	return &OrderService{repo: repo}
}

// Identity 调用方身份，来自已验证的登录态
type Identity struct {
	CustomerID string
	Email      string
}

// Get 按 (tenant, id) 查询订单
func (s *OrderService) Get(ctx context.Context, tenantID, id string) (*order.Order, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// List 后台订单列表
func (s *OrderService) List(ctx context.Context, tenantID string, f order.ListFilter) ([]*order.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, errs.Validation("unknown status filter %q", f.Status)
	}
	return s.repo.List(ctx, tenantID, f)
}

// ListForCustomer 客户本人的订单列表
func (s *OrderService) ListForCustomer(ctx context.Context, tenantID string, actor Identity) ([]*order.Order, error) {
	if actor.CustomerID == "" && actor.Email == "" {
		return nil, errs.Validation("caller identity is empty")
	}
	return s.repo.ListByCustomer(ctx, tenantID, actor.CustomerID, actor.Email)
}

// AdminUpdate 后台可修改的订单字段，nil 表示不修改
type AdminUpdate struct {
	Status          *order.Status
	ShippingAddress *string
	BillingAddress  *string
	DeliveryMethod  *string
	Total           *int64
	Note            string
}

// Update 后台修改订单
// 履约状态必须走状态机表；总价在支付完成后不可变
func (s *OrderService) Update(ctx context.Context, tenantID, id string, upd AdminUpdate) (*order.Order, error) {
	o, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if upd.Total != nil && *upd.Total != o.Total {
		if o.PaymentStatus == order.PaymentPaid {
			return nil, errs.StateConflict("total of order %s is immutable after payment", id)
		}
		if *upd.Total <= 0 {
			return nil, errs.Validation("total must be positive")
		}
		o.Total = *upd.Total
	}

	if upd.Status != nil && *upd.Status != o.Status {
		if !upd.Status.Valid() {
			return nil, errs.Validation("unknown status %q", *upd.Status)
		}
		if !order.CanTransition(o.Status, *upd.Status) {
			return nil, errs.StateConflict("cannot move order %s from %s to %s", id, o.Status, *upd.Status)
		}
		o.Status = *upd.Status
	}

	if upd.ShippingAddress != nil {
		o.ShippingAddress = *upd.ShippingAddress
	}
	if upd.BillingAddress != nil {
		o.BillingAddress = *upd.BillingAddress
	}
	if upd.DeliveryMethod != nil {
		o.DeliveryMethod = *upd.DeliveryMethod
	}
	if upd.Note != "" {
		o.Notes = appendNote(o.Notes, upd.Note)
	}

	if err := s.repo.Save(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Delete 后台删除订单（显式管理动作）
func (s *OrderService) Delete(ctx context.Context, tenantID, id string) error {
	return s.repo.Delete(ctx, tenantID, id)
}

// RequestCancellation 客户发起取消申请
// 归属校验：邮箱忽略大小写匹配，或客户 ID 精确匹配；
// 不匹配时返回越权错误而不是 404，避免跨身份探测订单是否存在
func (s *OrderService) RequestCancellation(ctx context.Context, tenantID, id string, actor Identity, reason string) (*order.Order, error) {
	o, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if !ownsOrder(o, actor) {
		return nil, errs.Authorization("order %s does not belong to the caller", id)
	}
	if !o.Status.Cancellable() {
		return nil, errs.StateConflict("order %s in status %s cannot be cancelled", id, o.Status)
	}

	// 条件转移：并发场景下状态可能已被别的请求改走
	applied, err := s.repo.TransitionStatus(ctx, tenantID, id,
		[]order.Status{order.StatusPending, order.StatusProcessing},
		order.StatusCancellationRequested)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, errs.StateConflict("order %s changed state concurrently", id)
	}

	note := fmt.Sprintf("[%s] cancellation requested by %s", time.Now().Format(time.RFC3339), actor.Email)
	if reason != "" {
		note += ": " + reason
	}
	if err := s.repo.AppendNote(ctx, tenantID, id, note); err != nil {
		zap.L().Warn("append cancellation note failed", zap.String("order_id", id), zap.Error(err))
	}

	return s.repo.GetByID(ctx, tenantID, id)
}

// ApprovalResult 取消审批结果
// NeedsManualRefund 只是计算给管理员看的提示：审批不动 payment_status，
// 真实退款是单独的人工审计动作，不随审批自动发生
type ApprovalResult struct {
	Order             *order.Order
	NeedsManualRefund bool
}

// ApproveCancellation 管理员批准取消申请，仅允许从 cancellation_requested 进入 cancelled
func (s *OrderService) ApproveCancellation(ctx context.Context, tenantID, id string) (*ApprovalResult, error) {
	o, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusCancellationRequested {
		return nil, errs.StateConflict("order %s is not awaiting cancellation approval (status %s)", id, o.Status)
	}

	applied, err := s.repo.TransitionStatus(ctx, tenantID, id,
		[]order.Status{order.StatusCancellationRequested},
		order.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, errs.StateConflict("order %s changed state concurrently", id)
	}

	// 退款提示必须基于转移之后的支付状态：
	// 支付 webhook 可能在上面的首次读取和审批之间落账
	cur, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	needsRefund := cur.PaymentStatus == order.PaymentPaid
	note := fmt.Sprintf("[%s] cancellation approved, needs_manual_refund=%v",
		time.Now().Format(time.RFC3339), needsRefund)
	if err := s.repo.AppendNote(ctx, tenantID, id, note); err != nil {
		zap.L().Warn("append approval note failed", zap.String("order_id", id), zap.Error(err))
	}

	updated, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &ApprovalResult{Order: updated, NeedsManualRefund: needsRefund}, nil
}

func ownsOrder(o *order.Order, actor Identity) bool {
	if actor.CustomerID != "" && o.CustomerID != "" && actor.CustomerID == o.CustomerID {
		return true
	}
	if actor.Email != "" && strings.EqualFold(actor.Email, o.CustomerEmail) {
		return true
	}
	return false
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
