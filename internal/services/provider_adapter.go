package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"rpchubBack/internal/models"
)

// Event type adapters use to normalize provider-side subscription
// cancellations, which carry no payment status of their own.
const EventTypeSubscriptionCanceled = "subscription.canceled"

// ProviderAdapter is the closed capability surface every payment network
// implements. CreateCheckout performs the provider API call and must not
// touch local state; ParseWebhook is pure — verification and decoding only,
// persistence belongs to the reconciliation orchestrator.
type ProviderAdapter interface {
	Provider() models.PaymentProvider

	// CreateCheckout creates the provider-side checkout/charge resource for
	// an already-persisted payment and returns its external reference.
	CreateCheckout(ctx context.Context, p models.Payment, email string) (models.CheckoutRef, error)

	// ParseWebhook verifies payload authenticity against the provider's
	// signing scheme and normalizes the delivery. It returns
	// models.ErrSignatureInvalid, models.ErrPayloadMalformed or
	// models.ErrSecretNotConfigured; a missing secret never falls back to
	// accepting the event.
	ParseWebhook(body []byte, header http.Header) (models.NormalizedEvent, error)
}

// VerifyHMAC validates a hex signature using HMAC-SHA256.
func VerifyHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, sigBytes)
}
