package service

import (
	"context"
	"fmt"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	"go.uber.org/zap"

	"github.com/example/storecore/internal/datamodels/order"
	"github.com/example/storecore/internal/errs"
	"github.com/example/storecore/internal/metrics"
	"github.com/example/storecore/internal/processor"
)

// WebhookService 处理商异步事件对账
// 处理商可能乱序、重复、丢失投递，这里只保证幂等应用：
// 同一事件应用 N 次和应用一次的终态完全相同
type WebhookService struct {
	orders    order.Repository
	dunning   *DunningService
	resolver  *CredentialResolver
	dedup     replayGuard // 可为 nil，只是去重快路径
	fulfill   FulfillmentPublisher
	tolerance time.Duration
}

// replayGuard 事件去重快路径，数据库条件更新才是幂等性的权威来源
type replayGuard interface {
	Seen(eventID string) bool
	MarkSeen(eventID string)
}

// NewWebhookService 创建 webhook 对账服务
func NewWebhookService(
	orders order.Repository,
	dunningSvc *DunningService,
	resolver *CredentialResolver,
	redisClient radix.Client,
	fulfill FulfillmentPublisher,
	tolerance time.Duration,
) *WebhookService {
	if fulfill == nil {
		fulfill = NopFulfillmentPublisher{}
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	s := &WebhookService{
		orders:    orders,
		dunning:   dunningSvc,
		resolver:  resolver,
		fulfill:   fulfill,
		tolerance: tolerance,
	}
	if redisClient != nil {
		s.dedup = redisReplayGuard{client: redisClient}
	}
	return s
}

// Handle 处理一次 webhook 投递
// 流程：定位租户 → 取 webhook 密钥 → 验签 → 解码 → 幂等应用
// 验签之前不做任何落库；4xx 类错误处理商不会重试，5xx 会重试
func (s *WebhookService) Handle(ctx context.Context, tenantHint string, rawBody []byte, sigHeader string) error {
	metrics.WebhookReceivedTotal.Inc()
	timer := time.Now()
	defer func() {
		metrics.WebhookProcessingDuration.Observe(time.Since(timer).Seconds())
	}()

	// 租户：优先请求头/查询参数提示，否则从会话 metadata 里恢复。
	// 该值在验签通过前只用于取密钥，不做任何业务用途。
	tenantID := tenantHint
	if tenantID == "" {
		tenantID = processor.PeekTenantID(rawBody)
	}
	if tenantID == "" {
		metrics.WebhookRejectedTotal.WithLabelValues("no_tenant").Inc()
		return errs.Validation("unable to determine tenant for webhook delivery")
	}

	creds, err := s.resolver.Resolve(ctx, tenantID, false)
	if err != nil {
		metrics.WebhookRejectedTotal.WithLabelValues("unresolvable_tenant").Inc()
		return err
	}

	if err := processor.VerifySignature(rawBody, sigHeader, creds.WebhookSecret, s.tolerance); err != nil {
		metrics.WebhookRejectedTotal.WithLabelValues("bad_signature").Inc()
		zap.L().Warn("webhook signature rejected", zap.String("tenant_id", tenantID))
		return err
	}

	ev, err := processor.DecodeEvent(rawBody)
	if err != nil {
		metrics.WebhookRejectedTotal.WithLabelValues("malformed").Inc()
		return err
	}

	// 快路径去重：只读判断，不在应用之前消耗事件。
	// Redis 不可用时跳过，幂等性由下面的条件更新兜底。
	if s.dedup != nil && s.dedup.Seen(ev.ID) {
		metrics.WebhookReplayedTotal.Inc()
		zap.L().Debug("webhook event already seen", zap.String("event_id", ev.ID))
		return nil
	}

	switch ev.Kind {
	case processor.EventCheckoutCompleted, processor.EventChargeSucceeded:
		err = s.applyPaid(ctx, tenantID, order.PaidRef{SessionID: ev.SessionID, OrderID: ev.OrderID}, ev.ChargeID)
	case processor.EventPaymentFailed:
		err = s.recordFailure(ctx, tenantID, ev)
	default:
		// 未知事件种类按约定 no-op，正常确认避免无意义的重试
		zap.L().Debug("ignoring webhook event",
			zap.String("tenant_id", tenantID), zap.String("type", ev.Type))
	}
	if err != nil {
		// 应用失败时不落去重标记，处理商的重试必须还能命中数据库
		return err
	}
	if s.dedup != nil {
		s.dedup.MarkSeen(ev.ID)
	}
	return nil
}

// ReplaySession 人工重放：对从未送达的事件，运维指定会话/订单强制补跑
// 与正常 webhook 路径共用同一套幂等逻辑，多跑无副作用
func (s *WebhookService) ReplaySession(ctx context.Context, tenantID string, ref order.PaidRef) (bool, error) {
	if tenantID == "" {
		return false, errs.Validation("tenant id is required")
	}
	if ref.SessionID == "" && ref.OrderID == "" {
		return false, errs.Validation("session id or order id is required")
	}
	applied, err := s.markPaidAndFulfill(ctx, tenantID, ref, "")
	if err != nil {
		return false, err
	}
	zap.L().Info("manual replay executed",
		zap.String("tenant_id", tenantID),
		zap.String("session_id", ref.SessionID),
		zap.String("order_id", ref.OrderID),
		zap.Bool("applied", applied))
	return applied, nil
}

func (s *WebhookService) applyPaid(ctx context.Context, tenantID string, ref order.PaidRef, chargeID string) error {
	applied, err := s.markPaidAndFulfill(ctx, tenantID, ref, chargeID)
	if err != nil {
		return err
	}
	if applied {
		metrics.WebhookAppliedTotal.Inc()
	} else {
		metrics.WebhookReplayedTotal.Inc()
	}
	return nil
}

// markPaidAndFulfill 幂等落账：条件更新没有命中任何行时，
// 要么订单已是已支付（重放，正常确认），要么订单不存在（永久拒绝）
func (s *WebhookService) markPaidAndFulfill(ctx context.Context, tenantID string, ref order.PaidRef, chargeID string) (bool, error) {
	applied, err := s.orders.MarkPaid(ctx, tenantID, ref, chargeID)
	if err != nil {
		return false, err
	}

	o, err := s.getByRef(ctx, tenantID, ref)
	if err != nil {
		return false, err
	}

	if applied {
		note := fmt.Sprintf("[%s] payment confirmed", time.Now().Format(time.RFC3339))
		if chargeID != "" {
			note += fmt.Sprintf(" (charge %s)", chargeID)
		}
		_ = s.orders.AppendNote(ctx, tenantID, o.ID, note)

		if err := s.fulfill.PublishOrderPaid(ctx, o); err != nil {
			// 状态已持久化，这里失败只丢履约消息，可人工重放补投，不让处理商重试
			zap.L().Warn("publish order paid message failed",
				zap.String("order_id", o.ID), zap.Error(err))
		}
		zap.L().Info("order marked paid",
			zap.String("tenant_id", tenantID),
			zap.String("order_id", o.ID),
			zap.String("charge_id", chargeID))
	}
	return applied, nil
}

func (s *WebhookService) getByRef(ctx context.Context, tenantID string, ref order.PaidRef) (*order.Order, error) {
	if ref.SessionID != "" {
		return s.orders.GetBySessionID(ctx, tenantID, ref.SessionID)
	}
	return s.orders.GetByID(ctx, tenantID, ref.OrderID)
}

func (s *WebhookService) recordFailure(ctx context.Context, tenantID string, ev *processor.Event) error {
	if ev.InvoiceID == "" {
		return errs.Validation("payment failed event is missing invoice id")
	}
	return s.dunning.RecordFailure(ctx, RecordFailureRequest{
		TenantID:      tenantID,
		CustomerID:    ev.CustomerID,
		CustomerEmail: ev.CustomerEmail,
		InvoiceID:     ev.InvoiceID,
		EventID:       ev.ID,
		AmountCents:   ev.AmountCents,
		Currency:      ev.Currency,
		Reason:        ev.Reason,
	})
}

// redisReplayGuard Redis 事件去重：
// Seen 只读，MarkSeen 仅在事件成功应用之后写入，
// 保证暂时性失败后处理商的重试不会被快路径吞掉
type redisReplayGuard struct {
	client radix.Client
}

func dedupKey(eventID string) string {
	return "storecore:webhook:evt:" + eventID
}

func (g redisReplayGuard) Seen(eventID string) bool {
	if eventID == "" {
		return false
	}
	var reply string
	if err := g.client.Do(radix.Cmd(&reply, "GET", dedupKey(eventID))); err != nil {
		zap.L().Warn("webhook dedup cache unavailable", zap.Error(err))
		return false
	}
	return reply != ""
}

func (g redisReplayGuard) MarkSeen(eventID string) {
	if eventID == "" {
		return
	}
	if err := g.client.Do(radix.Cmd(nil, "SET", dedupKey(eventID), "1", "EX", "86400")); err != nil {
		zap.L().Warn("webhook dedup cache unavailable", zap.Error(err))
	}
}
