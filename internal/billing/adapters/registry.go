package adapters

import (
	"strings"

	billingdomain "github.com/parlohq/parlo/internal/billing/domain"
	entitlementdomain "github.com/parlohq/parlo/internal/entitlement/domain"
)

// SecretFunc resolves the webhook secret for a provider from configuration.
type SecretFunc func(provider entitlementdomain.Provider) string

// Registry holds the known provider factories and their secrets. An adapter
// for a known provider with no secret is reported as not configured, which
// the transport turns into a hard refusal rather than an unverified accept.
type Registry struct {
	factories map[entitlementdomain.Provider]billingdomain.AdapterFactory
	secretFor SecretFunc
}

func NewRegistry(secretFor SecretFunc, factories ...billingdomain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[entitlementdomain.Provider]billingdomain.AdapterFactory{},
		secretFor: secretFor,
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		registry.factories[factory.Provider()] = factory
	}
	return registry
}

// Adapter returns a ready adapter for the named provider.
// ErrProviderNotFound for unknown names, ErrProviderNotConfigured when the
// provider exists but has no secret.
func (r *Registry) Adapter(name string) (billingdomain.ProviderAdapter, error) {
	if r == nil {
		return nil, entitlementdomain.ErrProviderNotFound
	}
	provider := entitlementdomain.Provider(strings.ToLower(strings.TrimSpace(name)))
	factory, ok := r.factories[provider]
	if !ok {
		return nil, entitlementdomain.ErrProviderNotFound
	}

	secret := ""
	if r.secretFor != nil {
		secret = strings.TrimSpace(r.secretFor(provider))
	}
	if secret == "" {
		return nil, entitlementdomain.ErrProviderNotConfigured
	}
	return factory.NewAdapter(secret)
}

func (r *Registry) ProviderExists(name string) bool {
	if r == nil {
		return false
	}
	provider := entitlementdomain.Provider(strings.ToLower(strings.TrimSpace(name)))
	_, ok := r.factories[provider]
	return ok
}
