package processor

import (
	"strings"
	"testing"
	"time"

	"github.com/example/storecore/internal/errs"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)
	header := Sign("whsec_abc", time.Now(), payload)

	if err := VerifySignature(payload, header, "whsec_abc", 5*time.Minute); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1","amount":1000}`)
	header := Sign("whsec_abc", time.Now(), payload)

	tampered := []byte(`{"id":"evt_1","amount":9999}`)
	err := VerifySignature(tampered, header, "whsec_abc", 5*time.Minute)
	if !errs.Is(err, errs.KindSignature) {
		t.Fatalf("tampered payload must be a signature error, got %v", err)
	}
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{}`)
	header := Sign("whsec_abc", time.Now(), payload)

	err := VerifySignature(payload, header, "whsec_other", 5*time.Minute)
	if !errs.Is(err, errs.KindSignature) {
		t.Fatalf("wrong secret must be a signature error, got %v", err)
	}
}

func TestVerifySignatureExpiredTimestamp(t *testing.T) {
	payload := []byte(`{}`)
	header := Sign("whsec_abc", time.Now().Add(-time.Hour), payload)

	err := VerifySignature(payload, header, "whsec_abc", 5*time.Minute)
	if !errs.Is(err, errs.KindSignature) {
		t.Fatalf("stale timestamp must be a signature error, got %v", err)
	}
	if !strings.Contains(err.Error(), "tolerance") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestVerifySignatureMalformedHeaders(t *testing.T) {
	payload := []byte(`{}`)
	for _, header := range []string{
		"",
		"v1=deadbeef",
		"t=123",
		"t=abc,v1=deadbeef",
		"t=123,v1=zzzz",
		"garbage",
	} {
		err := VerifySignature(payload, header, "whsec_abc", 0)
		if !errs.Is(err, errs.KindSignature) {
			t.Errorf("header %q: want signature error, got %v", header, err)
		}
	}
}

func TestVerifySignatureMissingSecret(t *testing.T) {
	payload := []byte(`{}`)
	header := Sign("whsec_abc", time.Now(), payload)
	if err := VerifySignature(payload, header, "", 0); !errs.Is(err, errs.KindSignature) {
		t.Fatalf("empty secret must be a signature error, got %v", err)
	}
}
