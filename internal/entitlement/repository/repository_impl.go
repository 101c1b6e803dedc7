package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/parlohq/parlo/internal/entitlement/domain"
	pkgdb "github.com/parlohq/parlo/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindRecord(ctx context.Context, db *gorm.DB, userID string) (*domain.EntitlementRecord, error) {
	var record domain.EntitlementRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) FindRecordByCustomer(ctx context.Context, db *gorm.DB, provider domain.Provider, customerID string) (*domain.EntitlementRecord, error) {
	if customerID == "" {
		return nil, nil
	}
	var record domain.EntitlementRecord
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_customer_id = ?", provider, customerID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) FindRecordBySubscription(ctx context.Context, db *gorm.DB, provider domain.Provider, subscriptionID string) (*domain.EntitlementRecord, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	var record domain.EntitlementRecord
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_subscription_id = ?", provider, subscriptionID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) SaveRecord(ctx context.Context, db *gorm.DB, record *domain.EntitlementRecord) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(record).Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider domain.Provider, providerEventID string) (*domain.EventRecord, error) {
	var event domain.EventRecord
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.EventRecord{}).
		Where("id = ?", id).
		Update("processed_at", processedAt).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, userID string, afterID snowflake.ID, limit int) ([]domain.EventRecord, error) {
	query := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit)
	if afterID != 0 {
		query = query.Where("id < ?", afterID)
	}

	var events []domain.EventRecord
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
