package stripe_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/parlohq/parlo/internal/billing/adapters/stripe"
	billingdomain "github.com/parlohq/parlo/internal/billing/domain"
	"github.com/parlohq/parlo/internal/entitlement/domain"
)

const testSecret = "whsec_test"

func signedHeaders(t *testing.T, secret string, payload []byte) http.Header {
	t.Helper()
	ts := "1767225600"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%s.%s", ts, payload)))
	sig := hex.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", ts, sig))
	return headers
}

func newAdapter(t *testing.T) billingdomain.ProviderAdapter {
	t.Helper()
	adapter, err := stripe.NewFactory().NewAdapter(testSecret)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.created"}`)

	if err := adapter.Verify(context.Background(), payload, signedHeaders(t, testSecret, payload)); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.created"}`)
	headers := signedHeaders(t, testSecret, payload)

	tampered := []byte(`{"id":"evt_1","type":"customer.subscription.deleted"}`)
	if err := adapter.Verify(context.Background(), tampered, headers); err != domain.ErrInvalidSignature {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1"}`)

	if err := adapter.Verify(context.Background(), payload, signedHeaders(t, "whsec_other", payload)); err != domain.ErrInvalidSignature {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	adapter := newAdapter(t)

	if err := adapter.Verify(context.Background(), []byte(`{}`), http.Header{}); err != domain.ErrInvalidSignature {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestParseSubscriptionCreated(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_sub",
		"type": "customer.subscription.created",
		"created": 1767225600,
		"data": {"object": {
			"id": "sub_42",
			"customer": "cus_42",
			"status": "active",
			"current_period_end": 1769904000,
			"metadata": {"user_id": "user_42"}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind != domain.EventKindActivated {
		t.Fatalf("kind = %s, want activated", event.Kind)
	}
	if event.EffectiveStatus != domain.StatusActive {
		t.Fatalf("status = %s, want active", event.EffectiveStatus)
	}
	if event.UserID != "user_42" {
		t.Fatalf("user = %s, want user_42", event.UserID)
	}
	if event.ProviderSubscriptionID != "sub_42" || event.ProviderCustomerID != "cus_42" {
		t.Fatalf("ids = %s/%s", event.ProviderSubscriptionID, event.ProviderCustomerID)
	}
	wantEnd := time.Unix(1769904000, 0).UTC()
	if event.PeriodEnd == nil || !event.PeriodEnd.Equal(wantEnd) {
		t.Fatalf("period end = %v, want %v", event.PeriodEnd, wantEnd)
	}
	if !event.OccurredAt.Equal(time.Unix(1767225600, 0).UTC()) {
		t.Fatalf("occurred at = %v", event.OccurredAt)
	}
}

func TestParseSubscriptionDeleted(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_del",
		"type": "customer.subscription.deleted",
		"created": 1767225600,
		"data": {"object": {"id": "sub_42", "customer": "cus_42", "status": "canceled", "ended_at": 1767225600}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind != domain.EventKindCanceled {
		t.Fatalf("kind = %s, want canceled", event.Kind)
	}
	if event.EffectiveStatus != domain.StatusCanceled {
		t.Fatalf("status = %s, want canceled", event.EffectiveStatus)
	}
}

func TestParseTrialingCollapsesToActive(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_trial",
		"type": "customer.subscription.created",
		"created": 1767225600,
		"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "trialing", "current_period_end": 1769904000}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.EffectiveStatus != domain.StatusActive {
		t.Fatalf("status = %s, trialing should collapse to active", event.EffectiveStatus)
	}
}

func TestParseInvoiceFailure(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_fail",
		"type": "invoice.payment_failed",
		"created": 1767225600,
		"data": {"object": {"id": "in_1", "customer": "cus_42", "subscription": "sub_42", "metadata": {"user_id": "user_42"}}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind != domain.EventKindPaymentFailed {
		t.Fatalf("kind = %s, want payment_failed", event.Kind)
	}
	if event.EffectiveStatus != domain.StatusPastDue {
		t.Fatalf("status = %s, want past_due", event.EffectiveStatus)
	}
}

func TestParseOneOffInvoiceFailureIgnored(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_oneoff",
		"type": "invoice.payment_failed",
		"created": 1767225600,
		"data": {"object": {"id": "in_2", "customer": "cus_42"}}
	}`)

	if _, err := adapter.Parse(context.Background(), payload); err != domain.ErrEventIgnored {
		t.Fatalf("err = %v, want ErrEventIgnored", err)
	}
}

func TestParseUnhandledTypeIgnored(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id": "evt_pi", "type": "payment_intent.succeeded", "data": {"object": {}}}`)

	if _, err := adapter.Parse(context.Background(), payload); err != domain.ErrEventIgnored {
		t.Fatalf("err = %v, want ErrEventIgnored", err)
	}
}

func TestParseMalformedPayload(t *testing.T) {
	adapter := newAdapter(t)

	if _, err := adapter.Parse(context.Background(), []byte(`not json`)); err != domain.ErrInvalidPayload {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
	if _, err := adapter.Parse(context.Background(), []byte(`{"type":"customer.subscription.created"}`)); err != domain.ErrInvalidEvent {
		t.Fatalf("missing id err = %v, want ErrInvalidEvent", err)
	}
}
