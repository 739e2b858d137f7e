package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/storecore/internal/datamodels/dunning"
	"github.com/example/storecore/internal/errs"
	"github.com/example/storecore/internal/metrics"
)

// DunningService 失败扣款追踪：记录、聚合、人工清除
type DunningService struct {
	repo dunning.Repository
}

// NewDunningService 创建失败扣款服务
func NewDunningService(repo dunning.Repository) *DunningService {
	return &DunningService{repo: repo}
}

// RecordFailureRequest 记录一次扣款失败
type RecordFailureRequest struct {
	TenantID      string
	CustomerID    string
	CustomerEmail string
	InvoiceID     string
	EventID       string
	AmountCents   int64
	Currency      string
	Reason        string
}

// RecordFailure 按 (tenant, invoice) 去重记录失败：
// 新的失败事件让 attempt_count 递增，同一事件的重复投递不计数，
// 绝不产生重复行
func (s *DunningService) RecordFailure(ctx context.Context, req RecordFailureRequest) error {
	if req.TenantID == "" || req.InvoiceID == "" {
		return errs.Validation("tenant id and invoice id are required")
	}
	if req.CustomerID == "" {
		req.CustomerID = "unknown"
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if req.Reason == "" {
		req.Reason = "unknown"
	}

	err := s.repo.Upsert(ctx, &dunning.FailedPayment{
		TenantID:      req.TenantID,
		CustomerID:    req.CustomerID,
		CustomerEmail: req.CustomerEmail,
		InvoiceID:     req.InvoiceID,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		Reason:        req.Reason,
		AttemptCount:  1,
		LastEventID:   req.EventID,
		FailedAt:      time.Now(),
	})
	if err != nil {
		return err
	}

	metrics.FailedPaymentsRecordedTotal.Inc()
	zap.L().Info("payment failure recorded",
		zap.String("tenant_id", req.TenantID),
		zap.String("invoice_id", req.InvoiceID),
		zap.String("reason", req.Reason))
	return nil
}

// ListForCustomer 客户维度的失败记录，限定在调用方自己的租户内
func (s *DunningService) ListForCustomer(ctx context.Context, tenantID, customerID string) ([]dunning.Record, error) {
	if tenantID == "" || customerID == "" {
		return nil, errs.Validation("tenant id and customer id are required")
	}
	rows, err := s.repo.ListByCustomer(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	out := make([]dunning.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, dunning.Normalize(rawFromRow(r, "")))
	}
	return out, nil
}

// ListForTenant 租户维度的失败记录，带客户显示名
// 每一行都过一遍 Normalize：单条残缺记录只会变成带默认值的行，
// 不允许让整个列表报错
func (s *DunningService) ListForTenant(ctx context.Context, tenantID string) ([]dunning.Record, error) {
	if tenantID == "" {
		return nil, errs.Validation("tenant id is required")
	}
	rows, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]dunning.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, dunning.Normalize(rawFromRow(&r.FailedPayment, r.CustomerName)))
	}
	return out, nil
}

// Dismiss 管理员显式清除一条失败记录，越租户的键等同于不存在
func (s *DunningService) Dismiss(ctx context.Context, tenantID, customerID, invoiceID string) error {
	if tenantID == "" || customerID == "" || invoiceID == "" {
		return errs.Validation("tenant id, customer id and invoice id are required")
	}
	removed, err := s.repo.Dismiss(ctx, tenantID, customerID, invoiceID)
	if err != nil {
		return err
	}
	if !removed {
		return errs.NotFound("failed payment %s not found for customer %s", invoiceID, customerID)
	}
	return nil
}

func rawFromRow(r *dunning.FailedPayment, customerName string) map[string]interface{} {
	return map[string]interface{}{
		"invoice_id":    r.InvoiceID,
		"customer_id":   r.CustomerID,
		"customer_name": customerName,
		"email":         r.CustomerEmail,
		"amount_cents":  r.AmountCents,
		"currency":      r.Currency,
		"reason":        r.Reason,
		"attempt_count": r.AttemptCount,
		"failed_at":     r.FailedAt,
	}
}
