package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	billingdomain "github.com/parlohq/parlo/internal/billing/domain"
	"github.com/parlohq/parlo/internal/entitlement/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() domain.Provider {
	return domain.ProviderStripe
}

func (f *Factory) NewAdapter(secret string) (billingdomain.ProviderAdapter, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, domain.ErrProviderNotConfigured
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderStripe
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.EntitlementEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "customer.subscription.created":
		return a.parseSubscription(event, payload, domain.EventKindActivated)
	case "customer.subscription.updated":
		return a.parseSubscription(event, payload, domain.EventKindRenewed)
	case "customer.subscription.deleted":
		return a.parseSubscription(event, payload, domain.EventKindCanceled)
	case "customer.subscription.paused":
		return a.parseSubscription(event, payload, domain.EventKindPaused)
	case "customer.subscription.resumed":
		return a.parseSubscription(event, payload, domain.EventKindResumed)
	case "invoice.payment_failed":
		return a.parseInvoiceFailure(event, payload)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeSubscription struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	EndedAt          int64             `json:"ended_at"`
	CancelAt         int64             `json:"cancel_at"`
	Created          int64             `json:"created"`
	Metadata         map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Created      int64             `json:"created"`
	Metadata     map[string]string `json:"metadata"`
}

func (a *Adapter) parseSubscription(event stripeEvent, payload []byte, kind domain.EventKind) (*domain.EntitlementEvent, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" || strings.TrimSpace(sub.Status) == "" {
		return nil, domain.ErrInvalidPayload
	}

	return &domain.EntitlementEvent{
		EventID:                event.ID,
		Provider:               domain.ProviderStripe,
		ProviderCustomerID:     strings.TrimSpace(sub.Customer),
		ProviderSubscriptionID: sub.ID,
		Kind:                   kind,
		EffectiveStatus:        collapseStatus(sub.Status),
		ProviderStatus:         strings.TrimSpace(sub.Status),
		PeriodEnd:              periodEnd(sub),
		OccurredAt:             timestamp(event.Created),
		UserID:                 strings.TrimSpace(sub.Metadata["user_id"]),
		RawPayload:             payload,
	}, nil
}

func (a *Adapter) parseInvoiceFailure(event stripeEvent, payload []byte) (*domain.EntitlementEvent, error) {
	var inv stripeInvoice
	if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(inv.Subscription) == "" {
		// A failed one-off invoice carries no entitlement consequence.
		return nil, domain.ErrEventIgnored
	}

	return &domain.EntitlementEvent{
		EventID:                event.ID,
		Provider:               domain.ProviderStripe,
		ProviderCustomerID:     strings.TrimSpace(inv.Customer),
		ProviderSubscriptionID: strings.TrimSpace(inv.Subscription),
		Kind:                   domain.EventKindPaymentFailed,
		EffectiveStatus:        domain.StatusPastDue,
		ProviderStatus:         "past_due",
		OccurredAt:             timestamp(event.Created),
		UserID:                 strings.TrimSpace(inv.Metadata["user_id"]),
		RawPayload:             payload,
	}, nil
}

// collapseStatus maps the provider status vocabulary onto the three-value
// canonical one.
func collapseStatus(status string) domain.EffectiveStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "trialing", "active":
		return domain.StatusActive
	case "past_due":
		return domain.StatusPastDue
	default:
		// canceled, unpaid, incomplete_expired, paused
		return domain.StatusCanceled
	}
}

// periodEnd picks the timestamp marking when paid access ends, preferring the
// renewal timestamp, then the end timestamp, then the scheduled cancellation.
func periodEnd(sub stripeSubscription) *time.Time {
	for _, unix := range []int64{sub.CurrentPeriodEnd, sub.EndedAt, sub.CancelAt} {
		if unix > 0 {
			t := time.Unix(unix, 0).UTC()
			return &t
		}
	}
	return nil
}

func timestamp(unix int64) time.Time {
	if unix == 0 {
		return time.Now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}
