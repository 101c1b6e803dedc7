package billing

import (
	"github.com/parlohq/parlo/internal/billing/adapters"
	"github.com/parlohq/parlo/internal/billing/adapters/lemonsqueezy"
	"github.com/parlohq/parlo/internal/billing/adapters/stripe"
	"github.com/parlohq/parlo/internal/billing/checkout"
	"github.com/parlohq/parlo/internal/billing/webhook"
	"github.com/parlohq/parlo/internal/config"
	entitlementdomain "github.com/parlohq/parlo/internal/entitlement/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(
			func(provider entitlementdomain.Provider) string {
				switch provider {
				case entitlementdomain.ProviderStripe:
					return cfg.Stripe.WebhookSecret
				case entitlementdomain.ProviderLemonSqueezy:
					return cfg.LemonSqueezy.SigningSecret
				default:
					return ""
				}
			},
			stripe.NewFactory(),
			lemonsqueezy.NewFactory(),
		)
	}),
	fx.Provide(webhook.NewService),
	fx.Provide(checkout.NewService),
)
