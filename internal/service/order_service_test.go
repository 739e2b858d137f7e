package service

import (
	"context"
	"strings"
	"testing"

	"github.com/example/storecore/internal/datamodels/order"
	"github.com/example/storecore/internal/errs"
)

func pendingOrder(id string) *order.Order {
	return &order.Order{
		ID:            id,
		TenantID:      "t1",
		CustomerID:    "cus_1",
		CustomerEmail: "buyer@example.com",
		Total:         2000,
		Currency:      "USD",
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
	}
}

func TestRequestCancellationHappyPath(t *testing.T) {
	repo := newFakeOrderRepo(pendingOrder("o1"))
	svc := NewOrderService(repo)

	o, err := svc.RequestCancellation(context.Background(), "t1", "o1",
		Identity{CustomerID: "cus_1", Email: "buyer@example.com"}, "changed my mind")
	if err != nil {
		t.Fatalf("request cancellation: %v", err)
	}
	if o.Status != order.StatusCancellationRequested {
		t.Errorf("status = %s, want cancellation_requested", o.Status)
	}
	if !strings.Contains(o.Notes, "changed my mind") {
		t.Errorf("reason not recorded in notes: %q", o.Notes)
	}
}

func TestRequestCancellationEmailCaseInsensitive(t *testing.T) {
	repo := newFakeOrderRepo(pendingOrder("o1"))
	svc := NewOrderService(repo)

	_, err := svc.RequestCancellation(context.Background(), "t1", "o1",
		Identity{Email: "BUYER@Example.COM"}, "")
	if err != nil {
		t.Fatalf("email ownership must ignore case: %v", err)
	}
}

func TestRequestCancellationWrongOwner(t *testing.T) {
	repo := newFakeOrderRepo(pendingOrder("o1"))
	svc := NewOrderService(repo)

	_, err := svc.RequestCancellation(context.Background(), "t1", "o1",
		Identity{CustomerID: "cus_other", Email: "other@example.com"}, "")
	if !errs.Is(err, errs.KindAuthorization) {
		t.Fatalf("foreign caller must get authorization error, got %v", err)
	}
	if repo.get("o1").Status != order.StatusPending {
		t.Error("order must stay untouched after rejected request")
	}
}

func TestRequestCancellationOnlyFromCancellableStates(t *testing.T) {
	for _, st := range []order.Status{order.StatusShipped, order.StatusDelivered,
		order.StatusCancellationRequested, order.StatusCancelled, order.StatusRefunded} {
		o := pendingOrder("o1")
		o.Status = st
		svc := NewOrderService(newFakeOrderRepo(o))

		_, err := svc.RequestCancellation(context.Background(), "t1", "o1",
			Identity{CustomerID: "cus_1"}, "")
		if !errs.Is(err, errs.KindStateConflict) {
			t.Errorf("status %s: want state conflict, got %v", st, err)
		}
	}
}

func TestApproveCancellationUnpaidOrder(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = order.StatusCancellationRequested
	repo := newFakeOrderRepo(o)
	svc := NewOrderService(repo)

	res, err := svc.ApproveCancellation(context.Background(), "t1", "o1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.Order.Status != order.StatusCancelled {
		t.Errorf("status = %s, want cancelled", res.Order.Status)
	}
	if res.NeedsManualRefund {
		t.Error("unpaid order must not need a refund")
	}
}

func TestApproveCancellationPaidOrderFlagsRefund(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = order.StatusCancellationRequested
	o.PaymentStatus = order.PaymentPaid
	repo := newFakeOrderRepo(o)
	svc := NewOrderService(repo)

	res, err := svc.ApproveCancellation(context.Background(), "t1", "o1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !res.NeedsManualRefund {
		t.Error("paid order must be flagged for manual refund")
	}
	// 审批只动履约状态，支付状态由人工退款流程单独处理
	if res.Order.PaymentStatus != order.PaymentPaid {
		t.Errorf("payment status = %s, approval must not touch it", res.Order.PaymentStatus)
	}
	if !strings.Contains(res.Order.Notes, "needs_manual_refund=true") {
		t.Errorf("refund flag missing from notes: %q", res.Order.Notes)
	}
}

// paidDuringApprovalRepo 模拟支付 webhook 在审批的首次读取之后、
// 状态转移之前落账的竞态
type paidDuringApprovalRepo struct {
	*fakeOrderRepo
}

func (r *paidDuringApprovalRepo) TransitionStatus(ctx context.Context, tenantID, id string, from []order.Status, to order.Status) (bool, error) {
	_, _ = r.fakeOrderRepo.MarkPaid(ctx, tenantID, order.PaidRef{OrderID: id}, "ch_late")
	return r.fakeOrderRepo.TransitionStatus(ctx, tenantID, id, from, to)
}

func TestApproveCancellationSeesPaymentLandedConcurrently(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = order.StatusCancellationRequested
	repo := &paidDuringApprovalRepo{fakeOrderRepo: newFakeOrderRepo(o)}
	svc := NewOrderService(repo)

	res, err := svc.ApproveCancellation(context.Background(), "t1", "o1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	// 退款提示基于转移之后的支付状态，不能沿用审批前的快照
	if !res.NeedsManualRefund {
		t.Error("order paid during approval must be flagged for manual refund")
	}
	if !strings.Contains(res.Order.Notes, "needs_manual_refund=true") {
		t.Errorf("note must reflect post-transition payment state: %q", res.Order.Notes)
	}
}

func TestApproveCancellationRequiresPendingRequest(t *testing.T) {
	for _, st := range []order.Status{order.StatusPending, order.StatusProcessing,
		order.StatusShipped, order.StatusCancelled} {
		o := pendingOrder("o1")
		o.Status = st
		svc := NewOrderService(newFakeOrderRepo(o))

		_, err := svc.ApproveCancellation(context.Background(), "t1", "o1")
		if !errs.Is(err, errs.KindStateConflict) {
			t.Errorf("status %s: want state conflict, got %v", st, err)
		}
	}
}

func TestUpdateTotalImmutableAfterPayment(t *testing.T) {
	o := pendingOrder("o1")
	o.PaymentStatus = order.PaymentPaid
	o.Status = order.StatusProcessing
	svc := NewOrderService(newFakeOrderRepo(o))

	newTotal := int64(9999)
	_, err := svc.Update(context.Background(), "t1", "o1", AdminUpdate{Total: &newTotal})
	if !errs.Is(err, errs.KindStateConflict) {
		t.Fatalf("total change after payment must conflict, got %v", err)
	}
}

func TestUpdateStatusFollowsStateMachine(t *testing.T) {
	repo := newFakeOrderRepo(pendingOrder("o1"))
	svc := NewOrderService(repo)

	shipped := order.StatusShipped
	_, err := svc.Update(context.Background(), "t1", "o1", AdminUpdate{Status: &shipped})
	if !errs.Is(err, errs.KindStateConflict) {
		t.Fatalf("pending -> shipped must be rejected, got %v", err)
	}

	processing := order.StatusProcessing
	o, err := svc.Update(context.Background(), "t1", "o1", AdminUpdate{Status: &processing})
	if err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if o.Status != order.StatusProcessing {
		t.Errorf("status = %s", o.Status)
	}

	bogus := order.Status("bogus")
	if _, err := svc.Update(context.Background(), "t1", "o1", AdminUpdate{Status: &bogus}); !errs.Is(err, errs.KindValidation) {
		t.Errorf("unknown status must be a validation error, got %v", err)
	}
}

func TestListRejectsUnknownStatusFilter(t *testing.T) {
	svc := NewOrderService(newFakeOrderRepo())
	_, err := svc.List(context.Background(), "t1", order.ListFilter{Status: "bogus"})
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("unknown filter must be a validation error, got %v", err)
	}
}

func TestGetIsTenantScoped(t *testing.T) {
	svc := NewOrderService(newFakeOrderRepo(pendingOrder("o1")))
	if _, err := svc.Get(context.Background(), "t-other", "o1"); !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("cross-tenant read must be not found, got %v", err)
	}
}
