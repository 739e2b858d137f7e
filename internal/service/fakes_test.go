package service

import (
	"context"
	"strings"
	"sync"

	"github.com/example/storecore/internal/datamodels/dunning"
	"github.com/example/storecore/internal/datamodels/order"
	"github.com/example/storecore/internal/datamodels/tenant"
	"github.com/example/storecore/internal/errs"
	"github.com/example/storecore/internal/processor"
)

// 测试用内存仓储，语义与 mysql 实现保持一致：
// 条件更新返回是否真正命中，不命中不算错误

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

func newFakeOrderRepo(orders ...*order.Order) *fakeOrderRepo {
	r := &fakeOrderRepo{orders: make(map[string]*order.Order)}
	for _, o := range orders {
		cp := *o
		r.orders[o.ID] = &cp
	}
	return r
}

func (r *fakeOrderRepo) Create(ctx context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, tenantID, id string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, errs.NotFound("order %s not found", id)
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) GetBySessionID(ctx context.Context, tenantID, sessionID string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.TenantID == tenantID && o.ProcessorSessionID == sessionID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, errs.NotFound("order for session %s not found", sessionID)
}

func (r *fakeOrderRepo) ListByCustomer(ctx context.Context, tenantID, customerID, email string) ([]*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*order.Order
	for _, o := range r.orders {
		if o.TenantID != tenantID {
			continue
		}
		if (customerID != "" && o.CustomerID == customerID) ||
			(email != "" && strings.EqualFold(o.CustomerEmail, email)) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) List(ctx context.Context, tenantID string, f order.ListFilter) ([]*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*order.Order
	for _, o := range r.orders {
		if o.TenantID != tenantID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeOrderRepo) MarkPaid(ctx context.Context, tenantID string, ref order.PaidRef, chargeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var o *order.Order
	for _, cand := range r.orders {
		if cand.TenantID != tenantID {
			continue
		}
		if (ref.SessionID != "" && cand.ProcessorSessionID == ref.SessionID) ||
			(ref.SessionID == "" && cand.ID == ref.OrderID) {
			o = cand
			break
		}
	}
	if o == nil || o.PaymentStatus == order.PaymentPaid {
		return false, nil
	}
	o.PaymentStatus = order.PaymentPaid
	if chargeID != "" {
		o.ProcessorChargeID = chargeID
	}
	if o.Status == order.StatusPending {
		o.Status = order.StatusProcessing
	}
	return true, nil
}

func (r *fakeOrderRepo) TransitionStatus(ctx context.Context, tenantID, id string, from []order.Status, to order.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.TenantID != tenantID {
		return false, nil
	}
	for _, f := range from {
		if o.Status == f {
			o.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeOrderRepo) AppendNote(ctx context.Context, tenantID, id, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.TenantID != tenantID {
		return errs.NotFound("order %s not found", id)
	}
	if o.Notes == "" {
		o.Notes = note
	} else {
		o.Notes += "\n" + note
	}
	return nil
}

func (r *fakeOrderRepo) Save(ctx context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) Delete(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.TenantID != tenantID {
		return errs.NotFound("order %s not found", id)
	}
	delete(r.orders, id)
	return nil
}

func (r *fakeOrderRepo) get(id string) *order.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

type fakeTenantRepo struct {
	creds map[string]*tenant.Credential
}

func newFakeTenantRepo(creds ...*tenant.Credential) *fakeTenantRepo {
	r := &fakeTenantRepo{creds: make(map[string]*tenant.Credential)}
	for _, c := range creds {
		r.creds[c.TenantID] = c
	}
	return r
}

func (r *fakeTenantRepo) GetByTenant(ctx context.Context, tenantID string) (*tenant.Credential, error) {
	c, ok := r.creds[tenantID]
	if !ok {
		return nil, errs.NotFound("credential for tenant %s not found", tenantID)
	}
	return c, nil
}

func (r *fakeTenantRepo) Upsert(ctx context.Context, c *tenant.Credential) error {
	r.creds[c.TenantID] = c
	return nil
}

// fakeDunningRepo 模拟按 (tenant_id, invoice_id) 去重的 upsert 语义，
// attempt_count 只在事件 ID 变化时递增
type fakeDunningRepo struct {
	rows map[string]*dunning.FailedPayment // key tenantID + "/" + invoiceID
}

func newFakeDunningRepo() *fakeDunningRepo {
	return &fakeDunningRepo{rows: make(map[string]*dunning.FailedPayment)}
}

func dunningKey(tenantID, invoiceID string) string {
	return tenantID + "/" + invoiceID
}

func (r *fakeDunningRepo) Upsert(ctx context.Context, rec *dunning.FailedPayment) error {
	key := dunningKey(rec.TenantID, rec.InvoiceID)
	if existing, ok := r.rows[key]; ok {
		if existing.LastEventID != rec.LastEventID {
			existing.AttemptCount++
		}
		existing.LastEventID = rec.LastEventID
		existing.Reason = rec.Reason
		existing.AmountCents = rec.AmountCents
		existing.FailedAt = rec.FailedAt
		return nil
	}
	cp := *rec
	r.rows[key] = &cp
	return nil
}

func (r *fakeDunningRepo) ListByCustomer(ctx context.Context, tenantID, customerID string) ([]*dunning.FailedPayment, error) {
	var out []*dunning.FailedPayment
	for _, rec := range r.rows {
		if rec.TenantID == tenantID && rec.CustomerID == customerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeDunningRepo) ListByTenant(ctx context.Context, tenantID string) ([]*dunning.TenantRow, error) {
	var out []*dunning.TenantRow
	for _, rec := range r.rows {
		if rec.TenantID == tenantID {
			out = append(out, &dunning.TenantRow{FailedPayment: *rec})
		}
	}
	return out, nil
}

func (r *fakeDunningRepo) Dismiss(ctx context.Context, tenantID, customerID, invoiceID string) (bool, error) {
	key := dunningKey(tenantID, invoiceID)
	rec, ok := r.rows[key]
	if !ok || rec.CustomerID != customerID {
		return false, nil
	}
	delete(r.rows, key)
	return true, nil
}

// fakeProcessor 记录调用参数的处理商桩
type fakeProcessor struct {
	lastSecretKey string
	sessions      int
	charges       int
	chargeErr     error
}

func (p *fakeProcessor) CreateCheckoutSession(ctx context.Context, secretKey string, params processor.SessionParams) (*processor.Session, error) {
	p.lastSecretKey = secretKey
	p.sessions++
	return &processor.Session{ID: "cs_fake_1", URL: "https://pay.example/cs_fake_1"}, nil
}

func (p *fakeProcessor) CreateCharge(ctx context.Context, secretKey string, params processor.ChargeParams) (*processor.Charge, error) {
	p.lastSecretKey = secretKey
	if p.chargeErr != nil {
		return nil, p.chargeErr
	}
	p.charges++
	return &processor.Charge{ID: "ch_fake_1", Status: "succeeded"}, nil
}

// recordPublisher 收集履约消息的桩
type recordPublisher struct {
	published []string // order IDs
	err       error
}

func (p *recordPublisher) PublishOrderPaid(ctx context.Context, o *order.Order) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, o.ID)
	return nil
}

// fakeReplayGuard 内存版事件去重标记
type fakeReplayGuard struct {
	seen map[string]bool
}

func newFakeReplayGuard() *fakeReplayGuard {
	return &fakeReplayGuard{seen: make(map[string]bool)}
}

func (g *fakeReplayGuard) Seen(eventID string) bool { return g.seen[eventID] }

func (g *fakeReplayGuard) MarkSeen(eventID string) { g.seen[eventID] = true }

// flakyOrderRepo 前 failures 次 MarkPaid 返回暂时性错误，之后恢复正常
type flakyOrderRepo struct {
	*fakeOrderRepo
	failures int
}

func (r *flakyOrderRepo) MarkPaid(ctx context.Context, tenantID string, ref order.PaidRef, chargeID string) (bool, error) {
	if r.failures > 0 {
		r.failures--
		return false, errs.Transient(nil, "database briefly unavailable")
	}
	return r.fakeOrderRepo.MarkPaid(ctx, tenantID, ref, chargeID)
}
