package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/parlohq/parlo/internal/billing/adapters"
	billingdomain "github.com/parlohq/parlo/internal/billing/domain"
	entitlementdomain "github.com/parlohq/parlo/internal/entitlement/domain"
	"github.com/parlohq/parlo/internal/locking"
	"github.com/parlohq/parlo/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const userLockTTL = 15 * time.Second

type Params struct {
	fx.In

	Log          *zap.Logger
	Adapters     *adapters.Registry
	Entitlements entitlementdomain.Service
	Locker       *locking.Locker  `optional:"true"`
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	adapters     *adapters.Registry
	entitlements entitlementdomain.Service
	locker       *locking.Locker
	metrics      *metrics.Metrics
}

func NewService(p Params) billingdomain.WebhookService {
	return &Service{
		log:          p.Log.Named("billing.webhook"),
		adapters:     p.Adapters,
		entitlements: p.Entitlements,
		locker:       p.Locker,
		metrics:      p.Metrics,
	}
}

// IngestWebhook carries one provider delivery through verification,
// normalization, user attribution and reconciliation. Verification runs
// before any parsing of the body.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return entitlementdomain.ErrInvalidProvider
	}

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		if errors.Is(err, entitlementdomain.ErrProviderNotConfigured) {
			s.log.Error("webhook endpoint hit for unconfigured provider, refusing to serve",
				zap.String("provider", provider))
		}
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.record(provider, "", "rejected")
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, entitlementdomain.ErrEventIgnored) {
			s.record(provider, "", "ignored")
			return nil
		}
		s.record(provider, "", "invalid")
		return err
	}

	if event.UserID == "" {
		userID, err := s.entitlements.ResolveUserByCustomer(ctx, event.Provider, event.ProviderCustomerID)
		if err != nil {
			return err
		}
		event.UserID = userID
	}
	if event.UserID == "" {
		userID, err := s.entitlements.ResolveUserBySubscription(ctx, event.Provider, event.ProviderSubscriptionID)
		if err != nil {
			return err
		}
		event.UserID = userID
	}
	if event.UserID == "" {
		// Acknowledged so the provider stops retrying; retrying cannot
		// attribute the event. The warning is the operator signal that
		// checkout metadata may be getting lost.
		s.log.Warn("webhook event has no resolvable user",
			zap.String("provider", provider),
			zap.String("event_id", event.EventID),
			zap.String("kind", string(event.Kind)),
			zap.String("provider_customer_id", event.ProviderCustomerID),
		)
		s.record(provider, string(event.Kind), "unresolvable")
		return nil
	}

	release, err := s.acquireUserLock(ctx, event.UserID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.entitlements.Apply(ctx, event); err != nil {
		if errors.Is(err, entitlementdomain.ErrEventAlreadyProcessed) {
			s.record(provider, string(event.Kind), "duplicate")
			return nil
		}
		s.record(provider, string(event.Kind), "failed")
		return err
	}

	s.record(provider, string(event.Kind), "applied")
	return nil
}

// acquireUserLock takes the cross-replica lock when Redis is configured. A
// held lock means another replica is mid-apply; failing the call lets the
// provider's retry land after it finishes.
func (s *Service) acquireUserLock(ctx context.Context, userID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	key := "entitlement:user:" + userID
	token, ok, err := s.locker.TryLock(ctx, key, userLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, billingdomain.ErrReconcileBusy
	}
	return func() {
		if err := s.locker.Release(ctx, key, token); err != nil {
			s.log.Warn("failed to release user lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *Service) record(provider, kind, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordWebhookEvent(provider, kind, outcome)
}
