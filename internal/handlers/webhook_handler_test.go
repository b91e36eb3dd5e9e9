package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rpchubBack/internal/models"
	"rpchubBack/internal/services"
)

func TestWebhookReceiveProviderRouting(t *testing.T) {
	h := NewWebhookHandler(&services.PaymentService{
		Adapters: map[models.PaymentProvider]services.ProviderAdapter{},
	}, nil)

	t.Run("unknown provider", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/payments/webhooks/paypal?:provider=paypal", strings.NewReader(`{}`))
		w := httptest.NewRecorder()

		h.Receive(w, r)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("known but unconfigured provider", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/payments/webhooks/stripe?:provider=stripe", strings.NewReader(`{}`))
		w := httptest.NewRecorder()

		h.Receive(w, r)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", w.Code)
		}
	})

	t.Run("uninitialized service", func(t *testing.T) {
		h := NewWebhookHandler(nil, nil)
		r := httptest.NewRequest(http.MethodPost, "/payments/webhooks/stripe?:provider=stripe", strings.NewReader(`{}`))
		w := httptest.NewRecorder()

		h.Receive(w, r)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
	})
}

func TestWebhookErrorStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"signature invalid", models.ErrSignatureInvalid, http.StatusBadRequest},
		{"payload malformed", models.ErrPayloadMalformed, http.StatusBadRequest},
		{"payment not found", models.ErrPaymentNotFound, http.StatusNotFound},
		{"transient db failure", errors.New("mysql gone away"), http.StatusServiceUnavailable},
		{"provider unavailable", models.ErrProviderUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := webhookErrorStatus(tc.err); got != tc.want {
				t.Fatalf("webhookErrorStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
