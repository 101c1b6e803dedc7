package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/parlohq/parlo/internal/billing/adapters"
	"github.com/parlohq/parlo/internal/billing/adapters/lemonsqueezy"
	"github.com/parlohq/parlo/internal/billing/adapters/stripe"
	billingdomain "github.com/parlohq/parlo/internal/billing/domain"
	"github.com/parlohq/parlo/internal/billing/webhook"
	"github.com/parlohq/parlo/internal/clock"
	"github.com/parlohq/parlo/internal/entitlement/domain"
	entitlementrepo "github.com/parlohq/parlo/internal/entitlement/repository"
	entitlementservice "github.com/parlohq/parlo/internal/entitlement/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const stripeSecret = "whsec_test"

func setupStack(t *testing.T) (domain.Service, billingdomain.WebhookService) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.EntitlementRecord{}, &domain.EventRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	entitlements := entitlementservice.NewService(entitlementservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  entitlementrepo.Provide(),
	})

	registry := adapters.NewRegistry(
		func(provider domain.Provider) string {
			if provider == domain.ProviderStripe {
				return stripeSecret
			}
			return "" // lemonsqueezy left unconfigured on purpose
		},
		stripe.NewFactory(),
		lemonsqueezy.NewFactory(),
	)

	ingest := webhook.NewService(webhook.Params{
		Log:          zap.NewNop(),
		Adapters:     registry,
		Entitlements: entitlements,
	})
	return entitlements, ingest
}

func signStripe(payload []byte) http.Header {
	ts := "1767225600"
	mac := hmac.New(sha256.New, []byte(stripeSecret))
	mac.Write([]byte(ts + "." + string(payload)))

	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return headers
}

func subscriptionPayload(eventID, subStatus, userID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "customer.subscription.created",
		"created": 1767225600,
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": %q,
			"current_period_end": 1769904000,
			"metadata": {"user_id": %q}
		}}
	}`, eventID, subStatus, userID))
}

func TestIngestAppliesSignedEvent(t *testing.T) {
	ctx := context.Background()
	entitlements, ingest := setupStack(t)

	payload := subscriptionPayload("evt_1", "active", "user_1")
	if err := ingest.IngestWebhook(ctx, "stripe", payload, signStripe(payload)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	premium, err := entitlements.IsPremium(ctx, "user_1")
	if err != nil {
		t.Fatalf("is premium: %v", err)
	}
	if !premium {
		t.Fatal("expected premium after signed activation event")
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	_, ingest := setupStack(t)

	payload := subscriptionPayload("evt_2", "active", "user_2")
	headers := http.Header{}
	headers.Set("Stripe-Signature", "t=1,v1=deadbeef")

	if err := ingest.IngestWebhook(ctx, "stripe", payload, headers); err != domain.ErrInvalidSignature {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestIngestAcksDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	_, ingest := setupStack(t)

	payload := subscriptionPayload("evt_3", "active", "user_3")
	headers := signStripe(payload)
	if err := ingest.IngestWebhook(ctx, "stripe", payload, headers); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := ingest.IngestWebhook(ctx, "stripe", payload, headers); err != nil {
		t.Fatalf("redelivery should be acknowledged, got %v", err)
	}
}

func TestIngestAcksIgnoredEventType(t *testing.T) {
	ctx := context.Background()
	_, ingest := setupStack(t)

	payload := []byte(`{"id": "evt_pi", "type": "payment_intent.succeeded", "data": {"object": {}}}`)
	if err := ingest.IngestWebhook(ctx, "stripe", payload, signStripe(payload)); err != nil {
		t.Fatalf("ignored event should be acknowledged, got %v", err)
	}
}

func TestIngestAcksUnresolvableUser(t *testing.T) {
	ctx := context.Background()
	entitlements, ingest := setupStack(t)

	payload := subscriptionPayload("evt_4", "active", "")
	if err := ingest.IngestWebhook(ctx, "stripe", payload, signStripe(payload)); err != nil {
		t.Fatalf("unresolvable event should be acknowledged, got %v", err)
	}

	if _, err := entitlements.Get(ctx, ""); err != domain.ErrRecordNotFound {
		t.Fatalf("no record should exist, got err %v", err)
	}
}

func TestIngestResolvesUserByCustomerID(t *testing.T) {
	ctx := context.Background()
	entitlements, ingest := setupStack(t)

	// First event carries checkout metadata and pins cus_1 to user_5.
	first := subscriptionPayload("evt_5", "active", "user_5")
	if err := ingest.IngestWebhook(ctx, "stripe", first, signStripe(first)); err != nil {
		t.Fatalf("first: %v", err)
	}

	// Later lifecycle events arrive without metadata.
	second := []byte(`{
		"id": "evt_6",
		"type": "customer.subscription.updated",
		"created": 1767312000,
		"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "active", "current_period_end": 1772582400}}
	}`)
	if err := ingest.IngestWebhook(ctx, "stripe", second, signStripe(second)); err != nil {
		t.Fatalf("second: %v", err)
	}

	record, err := entitlements.Get(ctx, "user_5")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.LastEventID != "evt_6" {
		t.Fatalf("last_event_id = %s, want evt_6 resolved via customer id", record.LastEventID)
	}
}

func TestIngestResolvesUserBySubscriptionID(t *testing.T) {
	ctx := context.Background()
	entitlements, ingest := setupStack(t)

	first := subscriptionPayload("evt_7", "active", "user_6")
	if err := ingest.IngestWebhook(ctx, "stripe", first, signStripe(first)); err != nil {
		t.Fatalf("first: %v", err)
	}

	// No metadata and no customer field, but the subscription id matches.
	second := []byte(`{
		"id": "evt_8",
		"type": "customer.subscription.updated",
		"created": 1767312000,
		"data": {"object": {"id": "sub_1", "status": "active", "current_period_end": 1772582400}}
	}`)
	if err := ingest.IngestWebhook(ctx, "stripe", second, signStripe(second)); err != nil {
		t.Fatalf("second: %v", err)
	}

	record, err := entitlements.Get(ctx, "user_6")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.LastEventID != "evt_8" {
		t.Fatalf("last_event_id = %s, want evt_8 resolved via subscription id", record.LastEventID)
	}
}

func TestIngestUnknownProvider(t *testing.T) {
	ctx := context.Background()
	_, ingest := setupStack(t)

	if err := ingest.IngestWebhook(ctx, "paypal", []byte(`{}`), http.Header{}); err != domain.ErrProviderNotFound {
		t.Fatalf("err = %v, want ErrProviderNotFound", err)
	}
}

func TestIngestUnconfiguredProvider(t *testing.T) {
	ctx := context.Background()
	_, ingest := setupStack(t)

	if err := ingest.IngestWebhook(ctx, "lemonsqueezy", []byte(`{}`), http.Header{}); err != domain.ErrProviderNotConfigured {
		t.Fatalf("err = %v, want ErrProviderNotConfigured", err)
	}
}
