package domain

import "errors"

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrProviderNotConfigured = errors.New("provider_not_configured")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrUnresolvableUser      = errors.New("unresolvable_user")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrRecordNotFound        = errors.New("record_not_found")
)
