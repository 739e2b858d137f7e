package dunning

import (
	"testing"
	"time"
)

func TestNormalizeDefaults(t *testing.T) {
	// 全空输入也要得到带默认值的合法记录
	rec := Normalize(map[string]interface{}{})
	if rec.CustomerName != "Unknown customer" {
		t.Errorf("customer name = %q, want Unknown customer", rec.CustomerName)
	}
	if rec.Currency != "USD" {
		t.Errorf("currency = %q, want USD", rec.Currency)
	}
	if rec.Reason != "unknown" {
		t.Errorf("reason = %q, want unknown", rec.Reason)
	}
	if rec.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", rec.AttemptCount)
	}
	if rec.AmountCents != 0 {
		t.Errorf("amount = %d, want 0", rec.AmountCents)
	}
}

func TestNormalizeFull(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := Normalize(map[string]interface{}{
		"invoice_id":    "in_123",
		"customer_id":   "cus_9",
		"customer_name": "Ada",
		"email":         "ada@example.com",
		"amount_cents":  int64(4500),
		"currency":      "EUR",
		"reason":        "card_declined",
		"attempt_count": int64(3),
		"failed_at":     at,
	})
	if rec.InvoiceID != "in_123" || rec.CustomerID != "cus_9" || rec.CustomerName != "Ada" {
		t.Errorf("identity fields wrong: %+v", rec)
	}
	if rec.AmountCents != 4500 || rec.Currency != "EUR" || rec.Reason != "card_declined" {
		t.Errorf("amount fields wrong: %+v", rec)
	}
	if rec.AttemptCount != 3 || !rec.FailedAt.Equal(at) {
		t.Errorf("attempt/time wrong: %+v", rec)
	}
}

func TestNormalizeHostileInput(t *testing.T) {
	// 类型错乱、负数、JSON 解码出的 float64 都不允许让函数失败
	rec := Normalize(map[string]interface{}{
		"invoice_id":    12345,
		"customer_id":   nil,
		"customer_name": "",
		"amount_cents":  float64(990),
		"attempt_count": float64(-2),
		"currency":      77,
		"reason":        "",
		"failed_at":     "not a time",
	})
	if rec.AmountCents != 990 {
		t.Errorf("amount = %d, want 990 (float64 input)", rec.AmountCents)
	}
	if rec.AttemptCount != 1 {
		t.Errorf("attempt = %d, negative input must keep default 1", rec.AttemptCount)
	}
	if rec.Currency != "USD" || rec.Reason != "unknown" || rec.CustomerName != "Unknown customer" {
		t.Errorf("defaults not applied: %+v", rec)
	}
	if rec.InvoiceID != "" {
		t.Errorf("invoice id = %q, non-string input must stay empty", rec.InvoiceID)
	}
}
