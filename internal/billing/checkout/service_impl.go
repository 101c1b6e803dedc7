package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	billingdomain "github.com/parlohq/parlo/internal/billing/domain"
	"github.com/parlohq/parlo/internal/config"
	"github.com/parlohq/parlo/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	stripeCheckoutURL = "https://api.stripe.com/v1/checkout/sessions"
	lemonCheckoutURL  = "https://api.lemonsqueezy.com/v1/checkouts"

	providerTimeout = 10 * time.Second
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Plans   *config.PlanCatalogHolder
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	cfg     config.Config
	plans   *config.PlanCatalogHolder
	metrics *metrics.Metrics
	client  *http.Client

	// overridable in tests
	stripeURL string
	lemonURL  string
}

func NewService(p Params) billingdomain.CheckoutService {
	return &Service{
		log:       p.Log.Named("billing.checkout"),
		cfg:       p.Cfg,
		plans:     p.Plans,
		metrics:   p.Metrics,
		client:    &http.Client{Timeout: providerTimeout},
		stripeURL: stripeCheckoutURL,
		lemonURL:  lemonCheckoutURL,
	}
}

// CreateSession validates the plan and redirect origin, then asks the
// provider for a hosted checkout session carrying the user id as correlation
// metadata. It never touches local entitlement state.
func (s *Service) CreateSession(ctx context.Context, req billingdomain.CreateSessionRequest) (*billingdomain.CreateSessionResult, error) {
	plan := s.plans.Get().Find(req.Plan)
	if plan == nil {
		return nil, billingdomain.ErrPlanNotFound
	}

	origin := s.resolveOrigin(req.Origin)

	switch {
	case s.cfg.Stripe.SecretKey != "" && plan.StripePriceID != "":
		result, err := s.createStripeSession(ctx, req.UserID, plan, origin)
		s.recordOutcome(plan.Code, err)
		return result, err
	case s.cfg.LemonSqueezy.APIKey != "" && s.cfg.LemonSqueezy.StoreID != "" && plan.LemonVariantID != "":
		result, err := s.createLemonSession(ctx, req.UserID, plan, origin)
		s.recordOutcome(plan.Code, err)
		return result, err
	default:
		s.recordOutcome(plan.Code, nil)
		return &billingdomain.CreateSessionResult{
			Demo:    true,
			Message: "checkout is not configured in this environment",
		}, nil
	}
}

// resolveOrigin enforces the redirect allow-list. Anything not on the list,
// including a malformed value, falls back to the configured default so the
// redirect target is never attacker-controlled.
func (s *Service) resolveOrigin(origin string) string {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		return s.cfg.Checkout.DefaultOrigin
	}
	for _, allowed := range s.cfg.Checkout.AllowedOrigins {
		if strings.EqualFold(origin, strings.TrimRight(allowed, "/")) {
			return origin
		}
	}
	s.log.Warn("checkout origin not in allow-list, using default",
		zap.String("origin", origin))
	return s.cfg.Checkout.DefaultOrigin
}

func (s *Service) createStripeSession(ctx context.Context, userID string, plan *config.Plan, origin string) (*billingdomain.CreateSessionResult, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", plan.StripePriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", origin+s.cfg.Checkout.SuccessPath)
	form.Set("cancel_url", origin+s.cfg.Checkout.CancelPath)
	form.Set("client_reference_id", userID)
	form.Set("subscription_data[metadata][user_id]", userID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.stripeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.Stripe.SecretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := s.do(httpReq)
	if err != nil {
		return nil, err
	}

	var session struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &session); err != nil || session.URL == "" {
		s.log.Error("unexpected checkout session response from stripe", zap.Error(err))
		return nil, billingdomain.ErrProviderUnavailable
	}
	return &billingdomain.CreateSessionResult{URL: session.URL}, nil
}

func (s *Service) createLemonSession(ctx context.Context, userID string, plan *config.Plan, origin string) (*billingdomain.CreateSessionResult, error) {
	payload := map[string]any{
		"data": map[string]any{
			"type": "checkouts",
			"attributes": map[string]any{
				"checkout_data": map[string]any{
					"custom": map[string]any{"user_id": userID},
				},
				"product_options": map[string]any{
					"redirect_url": origin + s.cfg.Checkout.SuccessPath,
				},
			},
			"relationships": map[string]any{
				"store": map[string]any{
					"data": map[string]any{"type": "stores", "id": s.cfg.LemonSqueezy.StoreID},
				},
				"variant": map[string]any{
					"data": map[string]any{"type": "variants", "id": plan.LemonVariantID},
				},
			},
		},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.lemonURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.LemonSqueezy.APIKey)
	httpReq.Header.Set("Content-Type", "application/vnd.api+json")
	httpReq.Header.Set("Accept", "application/vnd.api+json")

	body, err := s.do(httpReq)
	if err != nil {
		return nil, err
	}

	var response struct {
		Data struct {
			Attributes struct {
				URL string `json:"url"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil || response.Data.Attributes.URL == "" {
		s.log.Error("unexpected checkout response from lemonsqueezy", zap.Error(err))
		return nil, billingdomain.ErrProviderUnavailable
	}
	return &billingdomain.CreateSessionResult{URL: response.Data.Attributes.URL}, nil
}

func (s *Service) do(req *http.Request) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("checkout provider call failed", zap.Error(err))
		return nil, billingdomain.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, billingdomain.ErrProviderUnavailable
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.log.Warn("checkout provider returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 512)),
		)
		return nil, fmt.Errorf("%w: status %d", billingdomain.ErrProviderUnavailable, resp.StatusCode)
	}
	return body, nil
}

func (s *Service) recordOutcome(plan string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "created"
	if err != nil {
		outcome = "failed"
	}
	s.metrics.RecordCheckoutSession(plan, outcome)
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
