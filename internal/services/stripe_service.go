package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"rpchubBack/internal/models"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string

	// Куда вернуть пользователя после оплаты (фронт)
	SuccessURL string
	CancelURL  string

	Logger *slog.Logger
}

type StripeService struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
	logger        *slog.Logger
}

func NewStripeService(cfg StripeConfig) (*StripeService, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" || strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("stripe: secret_key/webhook_secret are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeService{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		logger:        logger,
	}, nil
}

func (s *StripeService) Provider() models.PaymentProvider { return models.ProviderStripe }

func (s *StripeService) CreateCheckout(ctx context.Context, p models.Payment, email string) (models.CheckoutRef, error) {
	logger := s.logger.With("op", "CreateCheckout", "payment_id", p.ID)

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(p.Currency)),
					UnitAmount: stripe.Int64(int64(math.Round(p.Amount * 100))),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%s plan", p.PlanType)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(p.ID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"payment_id": p.ID},
		},
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
			logger.Error("checkout session rejected", "status", stripeErr.HTTPStatusCode, "code", stripeErr.Code)
			return models.CheckoutRef{}, fmt.Errorf("%w: %s", models.ErrProviderRejected, stripeErr.Msg)
		}
		logger.Error("checkout session failed", "err", err)
		return models.CheckoutRef{}, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	raw, _ := json.Marshal(sess)
	return models.CheckoutRef{
		ExternalID:  sess.ID,
		RedirectURL: sess.URL,
		Raw:         raw,
	}, nil
}

func (s *StripeService) ParseWebhook(body []byte, header http.Header) (models.NormalizedEvent, error) {
	if s.webhookSecret == "" {
		return models.NormalizedEvent{}, models.ErrSecretNotConfigured
	}

	sig := header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(body, sig, s.webhookSecret)
	if err != nil {
		return models.NormalizedEvent{}, fmt.Errorf("%w: %v", models.ErrSignatureInvalid, err)
	}

	ev := models.NormalizedEvent{
		Provider:        models.ProviderStripe,
		ExternalEventID: event.ID,
		EventType:       string(event.Type),
		Raw:             body,
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.expired":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return models.NormalizedEvent{}, fmt.Errorf("%w: checkout session: %v", models.ErrPayloadMalformed, err)
		}
		ev.ExternalPaymentID = sess.ID
		ev.PaymentID = sess.ClientReferenceID
		if event.Type == "checkout.session.expired" {
			ev.RawStatus = "expired"
		} else {
			// "paid" when settled, "unpaid" for delayed payment methods.
			ev.RawStatus = string(sess.PaymentStatus)
		}
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return models.NormalizedEvent{}, fmt.Errorf("%w: payment intent: %v", models.ErrPayloadMalformed, err)
		}
		ev.ExternalPaymentID = pi.ID
		ev.PaymentID = pi.Metadata["payment_id"]
		ev.Metadata = pi.Metadata
		switch event.Type {
		case "payment_intent.succeeded":
			ev.RawStatus = "succeeded"
		case "payment_intent.payment_failed":
			ev.RawStatus = "payment_failed"
		default:
			ev.RawStatus = "canceled"
		}
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return models.NormalizedEvent{}, fmt.Errorf("%w: subscription: %v", models.ErrPayloadMalformed, err)
		}
		ev.EventType = EventTypeSubscriptionCanceled
		ev.Metadata = sub.Metadata
		ev.PaymentID = sub.Metadata["payment_id"]
		ev.RawStatus = "canceled"
	default:
		// Verified but uninteresting; the orchestrator ignores events with
		// no payment reference.
	}

	return ev, nil
}
