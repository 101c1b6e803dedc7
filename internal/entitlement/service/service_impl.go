package service

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/parlohq/parlo/internal/clock"
	"github.com/parlohq/parlo/internal/entitlement/domain"
	"github.com/parlohq/parlo/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository

	userLocks sync.Map // userID -> *sync.Mutex
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("entitlement.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Apply runs the reconciliation state machine for one canonical event. The
// whole apply is a single transaction so the record and the event trace can
// never be left half-updated; applies for the same user are serialized.
func (s *Service) Apply(ctx context.Context, event *domain.EntitlementEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	mu := s.lockFor(event.UserID)
	mu.Lock()
	defer mu.Unlock()

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored := &domain.EventRecord{
			ID:              s.genID.Generate(),
			Provider:        event.Provider,
			ProviderEventID: event.EventID,
			UserID:          event.UserID,
			Kind:            event.Kind,
			Payload:         datatypes.JSON(event.RawPayload),
			ReceivedAt:      now,
		}

		inserted, err := s.repo.InsertEvent(ctx, tx, stored)
		if err != nil {
			return err
		}
		if !inserted {
			prior, err := s.repo.FindEvent(ctx, tx, event.Provider, event.EventID)
			if err != nil {
				return err
			}
			if prior == nil {
				return domain.ErrInvalidEvent
			}
			if prior.ProcessedAt != nil {
				return domain.ErrEventAlreadyProcessed
			}
			// A previous delivery failed mid-apply; finish it now.
			stored = prior
		}

		record, err := s.repo.FindRecord(ctx, tx, event.UserID)
		if err != nil {
			return err
		}
		if record == nil {
			record = &domain.EntitlementRecord{
				UserID:    event.UserID,
				Tier:      domain.TierFree,
				Provider:  domain.ProviderNone,
				CreatedAt: now,
			}
		}

		switch s.gate(record, event) {
		case gateStale:
			s.log.Info("discarding stale event",
				zap.String("user_id", event.UserID),
				zap.String("event_id", event.EventID),
				zap.Time("occurred_at", event.OccurredAt),
				zap.Time("last_applied_at", record.LastEventAt),
			)
		case gateForeignProvider:
			s.log.Info("ignoring event from non-owning provider",
				zap.String("user_id", event.UserID),
				zap.String("event_id", event.EventID),
				zap.String("event_provider", string(event.Provider)),
				zap.String("owning_provider", string(record.Provider)),
			)
		case gateApply:
			s.transition(record, event)
			record.LastEventID = event.EventID
			record.LastEventAt = event.OccurredAt
			record.UpdatedAt = now
			if err := s.repo.SaveRecord(ctx, tx, record); err != nil {
				return err
			}
			s.log.Info("applied entitlement event",
				zap.String("user_id", event.UserID),
				zap.String("event_id", event.EventID),
				zap.String("kind", string(event.Kind)),
				zap.String("tier", string(record.Tier)),
			)
		}

		return s.repo.MarkProcessed(ctx, tx, stored.ID, now)
	})
}

type gateResult int

const (
	gateApply gateResult = iota
	gateStale
	gateForeignProvider
)

// gate enforces the ordering and provider-switch rules. The idempotency gate
// runs earlier, against the dedicated event table.
func (s *Service) gate(record *domain.EntitlementRecord, event *domain.EntitlementEvent) gateResult {
	// Subscription ids are provider-scoped, so an id match alone pins the
	// event to the same subscription even after a cancellation reset the
	// owning provider to none.
	if record.ProviderSubscriptionID != "" &&
		record.ProviderSubscriptionID == event.ProviderSubscriptionID &&
		!record.LastEventAt.IsZero() &&
		event.OccurredAt.Before(record.LastEventAt) {
		return gateStale
	}

	if record.Tier == domain.TierPremium &&
		record.Provider != domain.ProviderNone &&
		record.Provider != event.Provider &&
		event.Kind != domain.EventKindActivated {
		return gateForeignProvider
	}

	return gateApply
}

func (s *Service) transition(record *domain.EntitlementRecord, event *domain.EntitlementEvent) {
	switch {
	case isActivation(event):
		if record.Provider != domain.ProviderNone && record.Provider != event.Provider {
			s.log.Info("entitlement provider switch",
				zap.String("user_id", record.UserID),
				zap.String("from", string(record.Provider)),
				zap.String("to", string(event.Provider)),
			)
		}
		record.Tier = domain.TierPremium
		record.ExpiresAt = event.PeriodEnd
		record.Provider = event.Provider
		if event.ProviderCustomerID != "" {
			record.ProviderCustomerID = event.ProviderCustomerID
		}
		if event.ProviderSubscriptionID != "" {
			record.ProviderSubscriptionID = event.ProviderSubscriptionID
		}

	case event.EffectiveStatus == domain.StatusPastDue:
		// Grace period: a payment problem is known but access is not
		// revoked. Only the status is recorded.

	case isCancellation(event):
		if record.Provider == event.Provider || record.Provider == domain.ProviderNone {
			record.Tier = domain.TierFree
			record.ExpiresAt = nil
			record.Provider = domain.ProviderNone
		}
	}

	if event.ProviderStatus != "" {
		record.ProviderStatus = event.ProviderStatus
	}
}

func isActivation(event *domain.EntitlementEvent) bool {
	if event.EffectiveStatus != domain.StatusActive {
		return false
	}
	switch event.Kind {
	case domain.EventKindActivated, domain.EventKindRenewed, domain.EventKindResumed:
		return true
	default:
		return false
	}
}

func isCancellation(event *domain.EntitlementEvent) bool {
	switch event.Kind {
	case domain.EventKindCanceled, domain.EventKindExpired:
		return true
	}
	return event.EffectiveStatus == domain.StatusCanceled
}

func validateEvent(event *domain.EntitlementEvent) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}
	event.EventID = strings.TrimSpace(event.EventID)
	if event.EventID == "" {
		return domain.ErrInvalidEvent
	}
	switch event.Provider {
	case domain.ProviderStripe, domain.ProviderLemonSqueezy:
	default:
		return domain.ErrInvalidProvider
	}
	if strings.TrimSpace(event.UserID) == "" {
		return domain.ErrUnresolvableUser
	}
	if event.OccurredAt.IsZero() {
		return domain.ErrInvalidEvent
	}
	switch event.Kind {
	case domain.EventKindActivated, domain.EventKindRenewed, domain.EventKindCanceled,
		domain.EventKindExpired, domain.EventKindPaymentFailed, domain.EventKindPaused,
		domain.EventKindResumed:
	default:
		return domain.ErrInvalidEvent
	}
	return nil
}

func (s *Service) lockFor(userID string) *sync.Mutex {
	actual, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// IsPremium is the entitlement read gate. The boolean is computed at read
// time so access lapses when the expiry passes even if the provider never
// sends an explicit expired event.
func (s *Service) IsPremium(ctx context.Context, userID string) (bool, error) {
	record, err := s.repo.FindRecord(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	if record == nil || record.Tier != domain.TierPremium {
		return false, nil
	}
	if record.ExpiresAt == nil {
		return true, nil
	}
	return record.ExpiresAt.After(s.clock.Now()), nil
}

func (s *Service) Get(ctx context.Context, userID string) (*domain.EntitlementRecord, error) {
	record, err := s.repo.FindRecord(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrRecordNotFound
	}
	return record, nil
}

func (s *Service) ResolveUserByCustomer(ctx context.Context, provider domain.Provider, customerID string) (string, error) {
	record, err := s.repo.FindRecordByCustomer(ctx, s.db, provider, customerID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", nil
	}
	return record.UserID, nil
}

func (s *Service) ResolveUserBySubscription(ctx context.Context, provider domain.Provider, subscriptionID string) (string, error) {
	record, err := s.repo.FindRecordBySubscription(ctx, s.db, provider, subscriptionID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", nil
	}
	return record.UserID, nil
}

func (s *Service) ListEvents(ctx context.Context, req domain.ListEventsRequest) (domain.ListEventsResponse, error) {
	size := req.PageSize
	if size <= 0 {
		size = 10
	}
	if size > 100 {
		size = 100
	}

	var afterID snowflake.ID
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListEventsResponse{}, domain.ErrInvalidEvent
		}
		parsed, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListEventsResponse{}, domain.ErrInvalidEvent
		}
		afterID = parsed
	}

	events, err := s.repo.ListEvents(ctx, s.db, req.UserID, afterID, size+1)
	if err != nil {
		return domain.ListEventsResponse{}, err
	}

	resp := domain.ListEventsResponse{}
	hasMore := len(events) > size
	if hasMore {
		events = events[:size]
	}
	for _, ev := range events {
		resp.Events = append(resp.Events, domain.EventView{
			ID:          ev.ID.String(),
			Provider:    ev.Provider,
			EventID:     ev.ProviderEventID,
			Kind:        ev.Kind,
			ReceivedAt:  ev.ReceivedAt,
			ProcessedAt: ev.ProcessedAt,
		})
	}
	if hasMore && len(events) > 0 {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: events[len(events)-1].ID.String()})
		if err == nil {
			resp.NextPageToken = token
			resp.HasMore = true
		}
	}
	return resp, nil
}
