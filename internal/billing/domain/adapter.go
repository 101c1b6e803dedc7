// Package domain defines the provider adapter contracts for the billing
// boundary: signature verification and normalization of provider payloads
// into canonical entitlement events.
package domain

import (
	"context"
	"net/http"

	entitlementdomain "github.com/parlohq/parlo/internal/entitlement/domain"
)

// ProviderAdapter encapsulates all knowledge of one provider's webhook
// format. Verify must run before Parse; Parse must never be called on an
// unverified payload.
type ProviderAdapter interface {
	Provider() entitlementdomain.Provider

	// Verify checks the provider signature over the raw body using
	// constant-time comparison. It returns ErrInvalidSignature from the
	// entitlement domain on any mismatch or malformed header.
	Verify(ctx context.Context, payload []byte, headers http.Header) error

	// Parse normalizes a verified payload into a canonical event. Event
	// types with no entitlement consequence return ErrEventIgnored;
	// unrecognized shapes fail closed with ErrInvalidPayload.
	Parse(ctx context.Context, payload []byte) (*entitlementdomain.EntitlementEvent, error)
}

// AdapterFactory builds an adapter from its pre-shared secret. An empty
// secret means the provider is not configured; the factory reports that and
// the transport refuses to serve the endpoint rather than accept unverified
// events.
type AdapterFactory interface {
	Provider() entitlementdomain.Provider
	NewAdapter(secret string) (ProviderAdapter, error)
}
