package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/storecore/internal/datamodels/order"
	"github.com/example/storecore/internal/errs"
	"github.com/example/storecore/internal/metrics"
	"github.com/example/storecore/internal/processor"
)

// CheckoutService 结算编排：校验购物车、解析租户凭据、创建处理商会话/扣款
type CheckoutService struct {
	orders    order.Repository
	resolver  *CredentialResolver
	processor processor.Client
	fulfill   FulfillmentPublisher
}

// NewCheckoutService 创建结算服务
func NewCheckoutService(
	orders order.Repository,
	resolver *CredentialResolver,
	pc processor.Client,
	fulfill FulfillmentPublisher,
) *CheckoutService {
	if fulfill == nil {
		fulfill = NopFulfillmentPublisher{}
	}
	return &CheckoutService{
		orders:    orders,
		resolver:  resolver,
		processor: pc,
		fulfill:   fulfill,
	}
}

// CheckoutRequest 创建结算会话的入参
type CheckoutRequest struct {
	TenantID        string
	CustomerID      string
	CustomerEmail   string
	Items           []order.LineItem
	ShippingAddress string
	BillingAddress  string
	DeliveryMethod  string
	ShippingCost    int64
	Currency        string
}

// CheckoutResult 结算会话创建结果
type CheckoutResult struct {
	SessionURL string
	Order      *order.Order
}

// CreateCheckout 创建结算会话
// 会话 metadata 固定携带 tenant_id / order_id，webhook 回来时
// 从验签通过的报文里就能路由到正确租户和订单，不依赖额外查表
func (s *CheckoutService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.TenantID == "" {
		return nil, errs.Validation("tenant id is required")
	}
	if req.CustomerEmail == "" {
		return nil, errs.Validation("customer email is required")
	}
	if len(req.Items) == 0 {
		return nil, errs.Validation("cart is empty")
	}
	var total int64
	sessionItems := make([]processor.SessionItem, 0, len(req.Items))
	for i, it := range req.Items {
		if it.ProductRef == "" {
			return nil, errs.Validation("item %d is missing product ref", i)
		}
		if it.Quantity <= 0 {
			return nil, errs.Validation("item %d has invalid quantity", i)
		}
		if it.UnitPrice <= 0 {
			return nil, errs.Validation("item %d has no price", i)
		}
		total += it.Quantity * it.UnitPrice
		sessionItems = append(sessionItems, processor.SessionItem{
			ProductRef: it.ProductRef,
			Name:       it.Name,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
		})
	}
	total += req.ShippingCost

	creds, err := s.resolver.Resolve(ctx, req.TenantID, false)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	orderID := uuid.NewString()

	session, err := s.processor.CreateCheckoutSession(ctx, creds.SecretKey, processor.SessionParams{
		Items:    sessionItems,
		Currency: currency,
		Metadata: map[string]string{
			"tenant_id": req.TenantID,
			"order_id":  orderID,
		},
	})
	if err != nil {
		return nil, err
	}

	o := &order.Order{
		ID:                 orderID,
		TenantID:           req.TenantID,
		CustomerID:         req.CustomerID,
		CustomerEmail:      req.CustomerEmail,
		Items:              req.Items,
		ShippingAddress:    req.ShippingAddress,
		BillingAddress:     req.BillingAddress,
		DeliveryMethod:     req.DeliveryMethod,
		ShippingCost:       req.ShippingCost,
		Total:              total,
		Currency:           currency,
		Status:             order.StatusPending,
		PaymentStatus:      order.PaymentPending,
		ProcessorSessionID: session.ID,
		Notes:              fmt.Sprintf("checkout session created (%s mode)", creds.Mode),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}

	metrics.CheckoutSessionsTotal.Inc()
	zap.L().Info("checkout session created",
		zap.String("tenant_id", req.TenantID),
		zap.String("order_id", orderID),
		zap.String("session_id", session.ID),
		zap.String("mode", string(creds.Mode)),
		zap.Int64("total", total))

	return &CheckoutResult{SessionURL: session.URL, Order: o}, nil
}

// ChargeResult 直接扣款结果
type ChargeResult struct {
	ChargeID string
	Order    *order.Order
}

// CreateDirectCharge 旧版 token 直接扣款路径
// amountCents 必须等于服务端持久化订单总价的最小货币单位表示，
// 这是防客户端篡改金额的权威校验，先于任何处理商调用
func (s *CheckoutService) CreateDirectCharge(ctx context.Context, tenantID, orderID string, amountCents int64, token, email string) (*ChargeResult, error) {
	if tenantID == "" || orderID == "" {
		return nil, errs.Validation("tenant id and order id are required")
	}
	if !validToken(token) {
		return nil, errs.Validation("payment token has invalid shape")
	}

	o, err := s.orders.GetByID(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == order.PaymentPaid {
		return nil, errs.StateConflict("order %s is already paid", orderID)
	}
	if amountCents != o.AmountCents() {
		// 安全相关：这个错误不允许被吞掉，带上两侧金额方便后台排查
		return nil, errs.AmountMismatch(
			"charge amount %d does not match order %s total %d cents",
			amountCents, orderID, o.AmountCents())
	}

	creds, err := s.resolver.Resolve(ctx, tenantID, false)
	if err != nil {
		return nil, err
	}

	charge, err := s.processor.CreateCharge(ctx, creds.SecretKey, processor.ChargeParams{
		AmountCents: amountCents,
		Currency:    o.Currency,
		Token:       token,
		Email:       email,
		Description: fmt.Sprintf("order %s", orderID),
		Metadata: map[string]string{
			"tenant_id": tenantID,
			"order_id":  orderID,
		},
	})
	if err != nil {
		return nil, err
	}

	// 与 webhook 同一条幂等落账路径：条件更新，重复请求不会二次推进
	applied, err := s.orders.MarkPaid(ctx, tenantID, order.PaidRef{OrderID: orderID}, charge.ID)
	if err != nil {
		return nil, err
	}

	updated, err := s.orders.GetByID(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if applied {
		metrics.DirectChargesTotal.Inc()
		_ = s.orders.AppendNote(ctx, tenantID, orderID,
			fmt.Sprintf("paid via legacy token charge %s", charge.ID))
		if err := s.fulfill.PublishOrderPaid(ctx, updated); err != nil {
			// 订单状态已经落库，履约消息丢失可通过人工重放补投
			zap.L().Warn("publish order paid message failed",
				zap.String("order_id", orderID), zap.Error(err))
		}
	}

	zap.L().Info("direct charge completed",
		zap.String("tenant_id", tenantID),
		zap.String("order_id", orderID),
		zap.String("charge_id", charge.ID))

	return &ChargeResult{ChargeID: charge.ID, Order: updated}, nil
}

// validToken 校验旧版支付 token 的形态：tok_ 前缀 + 至少 8 位字母数字
func validToken(token string) bool {
	const prefix = "tok_"
	if len(token) < len(prefix)+8 {
		return false
	}
	if token[:len(prefix)] != prefix {
		return false
	}
	for _, c := range token[len(prefix):] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
