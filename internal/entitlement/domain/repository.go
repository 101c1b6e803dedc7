package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the persistence surface of the reconciliation engine. Every
// method takes the gorm handle explicitly so the service can run the apply
// step inside one transaction.
type Repository interface {
	FindRecord(ctx context.Context, db *gorm.DB, userID string) (*EntitlementRecord, error)
	FindRecordByCustomer(ctx context.Context, db *gorm.DB, provider Provider, customerID string) (*EntitlementRecord, error)
	FindRecordBySubscription(ctx context.Context, db *gorm.DB, provider Provider, subscriptionID string) (*EntitlementRecord, error)
	SaveRecord(ctx context.Context, db *gorm.DB, record *EntitlementRecord) error

	// InsertEvent inserts the event row, returning false when the
	// (provider, provider_event_id) pair already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider Provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
	ListEvents(ctx context.Context, db *gorm.DB, userID string, afterID snowflake.ID, limit int) ([]EventRecord, error)
}
