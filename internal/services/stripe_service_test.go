package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"rpchubBack/internal/models"
)

const stripeTestSecret = "whsec_test_secret"

// stripeSignatureHeader builds a Stripe-Signature header the same way Stripe
// does: v1 = HMAC-SHA256("<timestamp>.<payload>", secret).
func stripeSignatureHeader(payload []byte, secret string, ts time.Time) string {
	signed := fmt.Sprintf("%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), signHMAC([]byte(signed), secret))
}

func newStripeForTest(t *testing.T) *StripeService {
	t.Helper()
	svc, err := NewStripeService(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: stripeTestSecret,
		SuccessURL:    "https://app.example/success",
		CancelURL:     "https://app.example/cancel",
	})
	if err != nil {
		t.Fatalf("NewStripeService: %v", err)
	}
	return svc
}

func stripeEventPayload(eventType, objectJSON string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		stripe.APIVersion, eventType, objectJSON))
}

func TestStripeParseWebhook(t *testing.T) {
	svc := newStripeForTest(t)

	t.Run("checkout session completed", func(t *testing.T) {
		payload := stripeEventPayload("checkout.session.completed",
			`{"id":"cs_test_1","object":"checkout.session","client_reference_id":"pay-1","payment_status":"paid"}`)
		header := http.Header{}
		header.Set("Stripe-Signature", stripeSignatureHeader(payload, stripeTestSecret, time.Now()))

		ev, err := svc.ParseWebhook(payload, header)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.ExternalEventID != "evt_1" {
			t.Fatalf("expected evt_1, got %s", ev.ExternalEventID)
		}
		if ev.PaymentID != "pay-1" {
			t.Fatalf("expected pay-1, got %s", ev.PaymentID)
		}
		if ev.ExternalPaymentID != "cs_test_1" {
			t.Fatalf("expected cs_test_1, got %s", ev.ExternalPaymentID)
		}
		if ev.RawStatus != "paid" {
			t.Fatalf("expected paid, got %s", ev.RawStatus)
		}
	})

	t.Run("payment intent failed", func(t *testing.T) {
		payload := stripeEventPayload("payment_intent.payment_failed",
			`{"id":"pi_test_1","object":"payment_intent","metadata":{"payment_id":"pay-2"}}`)
		header := http.Header{}
		header.Set("Stripe-Signature", stripeSignatureHeader(payload, stripeTestSecret, time.Now()))

		ev, err := svc.ParseWebhook(payload, header)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.PaymentID != "pay-2" {
			t.Fatalf("expected pay-2, got %s", ev.PaymentID)
		}
		if ev.RawStatus != "payment_failed" {
			t.Fatalf("expected payment_failed, got %s", ev.RawStatus)
		}
	})

	t.Run("subscription deleted normalizes event type", func(t *testing.T) {
		payload := stripeEventPayload("customer.subscription.deleted",
			`{"id":"sub_test_1","object":"subscription","metadata":{"payment_id":"pay-3"}}`)
		header := http.Header{}
		header.Set("Stripe-Signature", stripeSignatureHeader(payload, stripeTestSecret, time.Now()))

		ev, err := svc.ParseWebhook(payload, header)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.EventType != EventTypeSubscriptionCanceled {
			t.Fatalf("expected %s, got %s", EventTypeSubscriptionCanceled, ev.EventType)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		payload := stripeEventPayload("checkout.session.completed",
			`{"id":"cs_test_1","object":"checkout.session"}`)
		header := http.Header{}
		header.Set("Stripe-Signature", stripeSignatureHeader(payload, "whsec_other", time.Now()))

		_, err := svc.ParseWebhook(payload, header)
		if !errors.Is(err, models.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("stale timestamp", func(t *testing.T) {
		payload := stripeEventPayload("checkout.session.completed",
			`{"id":"cs_test_1","object":"checkout.session"}`)
		header := http.Header{}
		header.Set("Stripe-Signature", stripeSignatureHeader(payload, stripeTestSecret, time.Now().Add(-time.Hour)))

		_, err := svc.ParseWebhook(payload, header)
		if !errors.Is(err, models.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		payload := stripeEventPayload("checkout.session.completed",
			`{"id":"cs_test_1","object":"checkout.session"}`)
		_, err := svc.ParseWebhook(payload, http.Header{})
		if !errors.Is(err, models.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("unhandled event type carries no payment reference", func(t *testing.T) {
		payload := stripeEventPayload("invoice.created", `{"id":"in_test_1","object":"invoice"}`)
		header := http.Header{}
		header.Set("Stripe-Signature", stripeSignatureHeader(payload, stripeTestSecret, time.Now()))

		ev, err := svc.ParseWebhook(payload, header)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.PaymentID != "" || ev.ExternalPaymentID != "" {
			t.Fatalf("expected no payment reference, got %q / %q", ev.PaymentID, ev.ExternalPaymentID)
		}
	})
}
