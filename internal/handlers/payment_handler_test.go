package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rpchubBack/internal/models"
	"rpchubBack/internal/services"
)

func authedRequest(method, target, body string, userID int, role string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := context.WithValue(r.Context(), "user_id", userID)
	ctx = context.WithValue(ctx, "role", role)
	return r.WithContext(ctx)
}

func TestCreatePaymentValidation(t *testing.T) {
	h := NewPaymentHandler(&services.PaymentService{
		Adapters: map[models.PaymentProvider]services.ProviderAdapter{},
	})

	t.Run("missing auth context", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"provider":"stripe","plan":"pro","amount":49.99}`))
		w := httptest.NewRecorder()

		h.CreatePayment(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.CreatePayment(w, authedRequest(http.MethodPost, "/payments",
			`{"provider":"paypal","plan":"pro","amount":49.99}`, 42, "user"))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("free plan is not purchasable", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.CreatePayment(w, authedRequest(http.MethodPost, "/payments",
			`{"provider":"stripe","plan":"free","amount":0}`, 42, "user"))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("non-positive amount", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.CreatePayment(w, authedRequest(http.MethodPost, "/payments",
			`{"provider":"stripe","plan":"pro","amount":-5}`, 42, "user"))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.CreatePayment(w, authedRequest(http.MethodPost, "/payments", `{"provider":`, 42, "user"))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestPaymentErrorStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"user not found", models.ErrUserNotFound, http.StatusNotFound},
		{"provider rejected", models.ErrProviderRejected, http.StatusBadRequest},
		{"provider unavailable", models.ErrProviderUnavailable, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := paymentErrorStatus(tc.err); got != tc.want {
				t.Fatalf("paymentErrorStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
