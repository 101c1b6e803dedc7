// Package domain contains the entitlement record, the canonical billing
// event, and the persistence contracts the reconciliation engine operates on.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Tier is the entitlement level a user currently holds.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Provider identifies which payment provider owns an entitlement.
type Provider string

const (
	ProviderNone         Provider = "none"
	ProviderStripe       Provider = "stripe"
	ProviderLemonSqueezy Provider = "lemonsqueezy"
)

// EventKind is the canonical classification of a billing occurrence.
type EventKind string

const (
	EventKindActivated     EventKind = "activated"
	EventKindRenewed       EventKind = "renewed"
	EventKindCanceled      EventKind = "canceled"
	EventKindExpired       EventKind = "expired"
	EventKindPaymentFailed EventKind = "payment_failed"
	EventKindPaused        EventKind = "paused"
	EventKindResumed       EventKind = "resumed"
)

// EffectiveStatus is the provider status vocabulary collapsed to three values.
type EffectiveStatus string

const (
	StatusActive   EffectiveStatus = "active"
	StatusPastDue  EffectiveStatus = "past_due"
	StatusCanceled EffectiveStatus = "canceled"
)

// EntitlementRecord is the single source of truth for a user's premium
// access. It is created on first reconciliation and mutated in place; it is
// never deleted, only transitioned back to the free tier.
type EntitlementRecord struct {
	UserID                 string     `gorm:"primaryKey;type:text"`
	Tier                   Tier       `gorm:"type:text;not null"`
	ExpiresAt              *time.Time `gorm:""`
	Provider               Provider   `gorm:"type:text;not null"`
	ProviderCustomerID     string     `gorm:"type:text;index"`
	ProviderSubscriptionID string     `gorm:"type:text;index"`
	ProviderStatus         string     `gorm:"type:text"`
	LastEventID            string     `gorm:"type:text"`
	LastEventAt            time.Time  `gorm:""`
	CreatedAt              time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (EntitlementRecord) TableName() string { return "entitlement_records" }

// EventRecord is the persisted trace of an inbound billing event. The unique
// (provider, provider_event_id) pair is the idempotency set; the rows double
// as the audit trail.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        Provider       `gorm:"type:text;not null;uniqueIndex:ux_events_provider_event,priority:1"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_events_provider_event,priority:2"`
	UserID          string         `gorm:"type:text;index"`
	Kind            EventKind      `gorm:"type:text;not null"`
	Payload         datatypes.JSON `gorm:"type:jsonb"`
	ReceivedAt      time.Time      `gorm:"not null"`
	ProcessedAt     *time.Time     `gorm:""`
}

func (EventRecord) TableName() string { return "entitlement_events" }

// EntitlementEvent is the canonical event produced by a provider adapter and
// consumed exactly once by the reconciliation engine.
type EntitlementEvent struct {
	EventID                string
	Provider               Provider
	ProviderCustomerID     string
	ProviderSubscriptionID string
	Kind                   EventKind
	EffectiveStatus        EffectiveStatus
	ProviderStatus         string
	PeriodEnd              *time.Time
	OccurredAt             time.Time
	UserID                 string
	RawPayload             []byte
}
