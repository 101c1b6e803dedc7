package domain

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrPlanNotFound        = errors.New("plan_not_found")
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrReconcileBusy       = errors.New("reconcile_busy")
)

// WebhookService ingests one provider webhook delivery end to end:
// verification, normalization, user attribution, reconciliation.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

// CheckoutService starts a subscription purchase with the external provider.
// It never mutates entitlement state; that only happens via confirmed events.
type CheckoutService interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error)
}

type CreateSessionRequest struct {
	UserID string
	Plan   string
	// Origin is the client-supplied redirect origin; it is validated
	// against the allow-list and replaced by the configured default when
	// it does not match.
	Origin string
}

type CreateSessionResult struct {
	URL     string `json:"url,omitempty"`
	Demo    bool   `json:"demo,omitempty"`
	Message string `json:"message,omitempty"`
}
