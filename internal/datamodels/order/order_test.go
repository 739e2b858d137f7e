package order

import (
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancellationRequested, true},
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusCancellationRequested, true},
		{StatusShipped, StatusDelivered, true},
		{StatusCancellationRequested, StatusCancelled, true},

		// 不允许跳级或回退
		{StatusPending, StatusShipped, false},
		{StatusPending, StatusDelivered, false},
		{StatusShipped, StatusProcessing, false},
		{StatusShipped, StatusCancellationRequested, false},
		{StatusDelivered, StatusCancellationRequested, false},
		{StatusCancellationRequested, StatusProcessing, false},

		// 终态不允许任何转移
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusProcessing, false},
		{StatusRefunded, StatusCancelled, false},

		// 未知状态
		{Status("unknown"), StatusPending, false},
		{StatusPending, Status("unknown"), false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusCancelled.Terminal() || !StatusRefunded.Terminal() {
		t.Error("cancelled and refunded must be terminal")
	}
	if StatusPending.Terminal() || StatusDelivered.Terminal() {
		t.Error("pending/delivered must not be terminal")
	}

	if !StatusPending.Cancellable() || !StatusProcessing.Cancellable() {
		t.Error("pending and processing must be cancellable")
	}
	for _, s := range []Status{StatusShipped, StatusDelivered, StatusCancellationRequested, StatusCancelled, StatusRefunded} {
		if s.Cancellable() {
			t.Errorf("status %s must not be cancellable", s)
		}
	}

	if Status("bogus").Valid() {
		t.Error("unknown status must not be valid")
	}
	if !StatusCancellationRequested.Valid() {
		t.Error("cancellation_requested must be valid")
	}
}

func TestAmountCents(t *testing.T) {
	o := &Order{Total: 2000}
	if got := o.AmountCents(); got != 200000 {
		t.Errorf("AmountCents() = %d, want 200000", got)
	}
}

func TestLineItemsScan(t *testing.T) {
	var l LineItems
	if err := l.Scan([]byte(`[{"product_ref":"p1","name":"Widget","quantity":2,"unit_price":500}]`)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(l) != 1 || l[0].ProductRef != "p1" || l[0].Quantity != 2 {
		t.Errorf("unexpected line items: %+v", l)
	}

	// NULL 列与空串都映射为空集合，不报错
	if err := l.Scan(nil); err != nil || len(l) != 0 {
		t.Errorf("scan nil: err=%v items=%v", err, l)
	}
	if err := l.Scan(""); err != nil || len(l) != 0 {
		t.Errorf("scan empty: err=%v items=%v", err, l)
	}

	if err := l.Scan(42); err == nil {
		t.Error("scan of unsupported type must fail")
	}
}
