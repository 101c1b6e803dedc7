package domain

import (
	"context"
	"time"
)

// Service is the reconciliation engine and the entitlement read gate.
type Service interface {
	// Apply feeds one canonical event through the idempotency, ordering and
	// provider-switch gates and atomically persists the outcome.
	// ErrEventAlreadyProcessed signals a confirmed idempotent no-op.
	Apply(ctx context.Context, event *EntitlementEvent) error

	// IsPremium computes the effective entitlement at read time so access
	// lapses when the expiry passes even without a new event.
	IsPremium(ctx context.Context, userID string) (bool, error)

	Get(ctx context.Context, userID string) (*EntitlementRecord, error)

	// ResolveUserByCustomer maps a provider customer id back to a user, for
	// events that carry no checkout metadata.
	ResolveUserByCustomer(ctx context.Context, provider Provider, customerID string) (string, error)

	// ResolveUserBySubscription is the second attribution fallback, keyed on
	// the provider subscription id.
	ResolveUserBySubscription(ctx context.Context, provider Provider, subscriptionID string) (string, error)

	ListEvents(ctx context.Context, req ListEventsRequest) (ListEventsResponse, error)
}

type ListEventsRequest struct {
	UserID    string
	PageToken string
	PageSize  int
}

type ListEventsResponse struct {
	Events        []EventView `json:"events"`
	NextPageToken string      `json:"next_page_token"`
	HasMore       bool        `json:"has_more"`
}

// EventView is the audit-trail projection of an EventRecord.
type EventView struct {
	ID          string     `json:"id"`
	Provider    Provider   `json:"provider"`
	EventID     string     `json:"event_id"`
	Kind        EventKind  `json:"kind"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
