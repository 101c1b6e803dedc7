package lemonsqueezy_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/parlohq/parlo/internal/billing/adapters/lemonsqueezy"
	billingdomain "github.com/parlohq/parlo/internal/billing/domain"
	"github.com/parlohq/parlo/internal/entitlement/domain"
)

const testSecret = "ls_signing_secret"

func signatureFor(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func newAdapter(t *testing.T) billingdomain.ProviderAdapter {
	t.Helper()
	adapter, err := lemonsqueezy.NewFactory().NewAdapter(testSecret)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"meta":{"event_name":"subscription_created"}}`)

	headers := http.Header{}
	headers.Set("X-Signature", signatureFor(testSecret, payload))

	if err := adapter.Verify(context.Background(), payload, headers); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"meta":{"event_name":"subscription_created"}}`)

	headers := http.Header{}
	headers.Set("X-Signature", signatureFor(testSecret, payload))

	if err := adapter.Verify(context.Background(), []byte(`{"meta":{}}`), headers); err != domain.ErrInvalidSignature {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsGarbageHeader(t *testing.T) {
	adapter := newAdapter(t)

	headers := http.Header{}
	headers.Set("X-Signature", "not-hex!!")

	if err := adapter.Verify(context.Background(), []byte(`{}`), headers); err != domain.ErrInvalidSignature {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if err := adapter.Verify(context.Background(), []byte(`{}`), http.Header{}); err != domain.ErrInvalidSignature {
		t.Fatalf("missing header err = %v, want ErrInvalidSignature", err)
	}
}

func TestParseSubscriptionCreated(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"meta": {
			"event_name": "subscription_created",
			"custom_data": {"user_id": "user_9"}
		},
		"data": {
			"id": "313",
			"attributes": {
				"customer_id": 91,
				"status": "active",
				"renews_at": "2026-04-01T00:00:00Z",
				"updated_at": "2026-03-01T10:00:00Z"
			}
		}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind != domain.EventKindActivated {
		t.Fatalf("kind = %s, want activated", event.Kind)
	}
	if event.UserID != "user_9" {
		t.Fatalf("user = %s, want user_9", event.UserID)
	}
	if event.ProviderCustomerID != "91" || event.ProviderSubscriptionID != "313" {
		t.Fatalf("ids = %s/%s", event.ProviderCustomerID, event.ProviderSubscriptionID)
	}
	wantEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if event.PeriodEnd == nil || !event.PeriodEnd.Equal(wantEnd) {
		t.Fatalf("period end = %v, want %v", event.PeriodEnd, wantEnd)
	}
	if !event.OccurredAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("occurred at = %v", event.OccurredAt)
	}
}

func TestParseDerivedEventIDIsStable(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"meta": {"event_name": "subscription_updated"},
		"data": {"id": "313", "attributes": {"customer_id": 91, "status": "active", "updated_at": "2026-03-01T10:00:00Z"}}
	}`)

	first, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	second, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if first.EventID == "" || first.EventID != second.EventID {
		t.Fatalf("event ids %q vs %q, want identical", first.EventID, second.EventID)
	}
}

func TestParseCancelledAndExpired(t *testing.T) {
	adapter := newAdapter(t)

	cases := []struct {
		eventName string
		status    string
		wantKind  domain.EventKind
	}{
		{"subscription_cancelled", "cancelled", domain.EventKindCanceled},
		{"subscription_expired", "expired", domain.EventKindExpired},
		{"subscription_payment_failed", "past_due", domain.EventKindPaymentFailed},
		{"subscription_paused", "paused", domain.EventKindPaused},
		{"subscription_unpaused", "active", domain.EventKindResumed},
	}
	for _, tc := range cases {
		t.Run(tc.eventName, func(t *testing.T) {
			payload := []byte(`{
				"meta": {"event_name": "` + tc.eventName + `"},
				"data": {"id": "313", "attributes": {"customer_id": 91, "status": "` + tc.status + `", "updated_at": "2026-03-01T10:00:00Z"}}
			}`)
			event, err := adapter.Parse(context.Background(), payload)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if event.Kind != tc.wantKind {
				t.Fatalf("kind = %s, want %s", event.Kind, tc.wantKind)
			}
		})
	}
}

func TestParsePaymentSuccessIgnored(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"meta": {"event_name": "subscription_payment_success"},
		"data": {"id": "313", "attributes": {"status": "active"}}
	}`)

	if _, err := adapter.Parse(context.Background(), payload); err != domain.ErrEventIgnored {
		t.Fatalf("err = %v, want ErrEventIgnored", err)
	}
}

func TestParseMalformedPayload(t *testing.T) {
	adapter := newAdapter(t)

	if _, err := adapter.Parse(context.Background(), []byte(`[`)); err != domain.ErrInvalidPayload {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
	if _, err := adapter.Parse(context.Background(), []byte(`{"meta":{"event_name":"subscription_created"},"data":{}}`)); err != domain.ErrInvalidPayload {
		t.Fatalf("missing data id err = %v, want ErrInvalidPayload", err)
	}
}
