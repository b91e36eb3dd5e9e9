package models

import (
	"errors"
)

var (
	ErrNoRecord     = errors.New("models: no matching record found")
	ErrUserNotFound = errors.New("models: user not found")
	ErrForbidden    = errors.New("models: forbidden")
)

// Webhook verification and parsing failures. None of these may ever be
// treated as a verified event.
var (
	ErrSignatureInvalid    = errors.New("models: webhook signature invalid")
	ErrSecretNotConfigured = errors.New("models: webhook secret not configured")
	ErrPayloadMalformed    = errors.New("models: webhook payload malformed")
)

var (
	ErrPaymentNotFound      = errors.New("models: payment not found")
	ErrDuplicateEvent       = errors.New("models: webhook event already processed")
	ErrProviderUnavailable  = errors.New("models: payment provider unavailable")
	ErrProviderRejected     = errors.New("models: payment provider rejected request")
	ErrSubscriptionNotFound = errors.New("models: subscription not found")
)

// IsRetryable reports whether the provider should re-deliver the webhook.
// Signature and parse failures are settled; storage failures are not.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrSecretNotConfigured),
		errors.Is(err, ErrPayloadMalformed),
		errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrDuplicateEvent),
		errors.Is(err, ErrForbidden):
		return false
	}
	return true
}
