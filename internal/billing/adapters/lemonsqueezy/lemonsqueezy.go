package lemonsqueezy

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
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
	return domain.ProviderLemonSqueezy
}

func (f *Factory) NewAdapter(secret string) (billingdomain.ProviderAdapter, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, domain.ErrProviderNotConfigured
	}
	return &Adapter{signingSecret: secret}, nil
}

type Adapter struct {
	signingSecret string
}

func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderLemonSqueezy
}

// Verify checks the X-Signature header: the hex HMAC-SHA256 of the raw body.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("X-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	provided, err := hex.DecodeString(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.signingSecret))
	_, _ = mac.Write(payload)

	if !hmac.Equal(provided, mac.Sum(nil)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.EntitlementEvent, error) {
	var event lemonEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	eventName := strings.TrimSpace(event.Meta.EventName)
	if eventName == "" || strings.TrimSpace(event.Data.ID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	kind, ok := eventKind(eventName)
	if !ok {
		return nil, domain.ErrEventIgnored
	}

	attrs := event.Data.Attributes
	if strings.TrimSpace(attrs.Status) == "" {
		return nil, domain.ErrInvalidPayload
	}

	occurredAt := parseTime(attrs.UpdatedAt)
	if occurredAt.IsZero() {
		occurredAt = parseTime(attrs.CreatedAt)
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &domain.EntitlementEvent{
		// The provider does not ship a webhook event id; derive a stable
		// one so retransmissions of the same delivery dedupe.
		EventID:                fmt.Sprintf("%s:%s:%d", eventName, event.Data.ID, occurredAt.Unix()),
		Provider:               domain.ProviderLemonSqueezy,
		ProviderCustomerID:     attrs.CustomerID.String(),
		ProviderSubscriptionID: event.Data.ID,
		Kind:                   kind,
		EffectiveStatus:        collapseStatus(attrs.Status),
		ProviderStatus:         strings.TrimSpace(attrs.Status),
		PeriodEnd:              periodEnd(attrs),
		OccurredAt:             occurredAt,
		UserID:                 strings.TrimSpace(event.Meta.CustomData.UserID),
		RawPayload:             payload,
	}, nil
}

type lemonEvent struct {
	Meta lemonMeta `json:"meta"`
	Data lemonData `json:"data"`
}

type lemonMeta struct {
	EventName  string          `json:"event_name"`
	CustomData lemonCustomData `json:"custom_data"`
}

type lemonCustomData struct {
	UserID string `json:"user_id"`
}

type lemonData struct {
	ID         string          `json:"id"`
	Attributes lemonAttributes `json:"attributes"`
}

type lemonAttributes struct {
	CustomerID  json.Number `json:"customer_id"`
	Status      string      `json:"status"`
	RenewsAt    string      `json:"renews_at"`
	EndsAt      string      `json:"ends_at"`
	TrialEndsAt string      `json:"trial_ends_at"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
}

func eventKind(eventName string) (domain.EventKind, bool) {
	switch eventName {
	case "subscription_created":
		return domain.EventKindActivated, true
	case "subscription_updated":
		return domain.EventKindRenewed, true
	case "subscription_cancelled":
		return domain.EventKindCanceled, true
	case "subscription_expired":
		return domain.EventKindExpired, true
	case "subscription_payment_failed":
		return domain.EventKindPaymentFailed, true
	case "subscription_paused":
		return domain.EventKindPaused, true
	case "subscription_unpaused", "subscription_resumed":
		return domain.EventKindResumed, true
	default:
		// subscription_payment_success and order events carry no
		// entitlement consequence here.
		return "", false
	}
}

func collapseStatus(status string) domain.EffectiveStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "on_trial", "active":
		return domain.StatusActive
	case "past_due":
		return domain.StatusPastDue
	default:
		// cancelled, expired, unpaid, paused
		return domain.StatusCanceled
	}
}

// periodEnd prefers the renewal timestamp, then the end timestamp, then the
// trial expiry.
func periodEnd(attrs lemonAttributes) *time.Time {
	for _, raw := range []string{attrs.RenewsAt, attrs.EndsAt, attrs.TrialEndsAt} {
		if t := parseTime(raw); !t.IsZero() {
			return &t
		}
	}
	return nil
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
