package fsm

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"rpchubBack/internal/models"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from models.PaymentStatus
		to   models.PaymentStatus
		want bool
	}{
		{"pending to processing", models.PaymentPending, models.PaymentProcessing, true},
		{"pending to completed", models.PaymentPending, models.PaymentCompleted, true},
		{"processing to completed", models.PaymentProcessing, models.PaymentCompleted, true},
		{"processing to failed", models.PaymentProcessing, models.PaymentFailed, true},
		{"same status", models.PaymentProcessing, models.PaymentProcessing, true},
		{"completed to failed", models.PaymentCompleted, models.PaymentFailed, false},
		{"completed to pending", models.PaymentCompleted, models.PaymentPending, false},
		{"failed to completed", models.PaymentFailed, models.PaymentCompleted, false},
		{"processing to pending", models.PaymentProcessing, models.PaymentPending, false},
		{"expired to completed", models.PaymentExpired, models.PaymentCompleted, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []models.PaymentStatus{models.PaymentCompleted, models.PaymentFailed, models.PaymentCanceled, models.PaymentExpired} {
		if !Terminal(s) {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []models.PaymentStatus{models.PaymentPending, models.PaymentProcessing} {
		if Terminal(s) {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestMapProviderStatus(t *testing.T) {
	t.Run("known values", func(t *testing.T) {
		cases := []struct {
			provider models.PaymentProvider
			raw      string
			want     models.PaymentStatus
		}{
			{models.ProviderStripe, "paid", models.PaymentCompleted},
			{models.ProviderStripe, "expired", models.PaymentExpired},
			{models.ProviderCoinpay, "confirming", models.PaymentProcessing},
			{models.ProviderCoinpay, "finished", models.PaymentCompleted},
			{models.ProviderAirbapay, "SUCCESS", models.PaymentCompleted},
			{models.ProviderAirbapay, " rejected ", models.PaymentFailed},
		}
		for _, tc := range cases {
			if got := MapProviderStatus(tc.provider, tc.raw); got != tc.want {
				t.Fatalf("MapProviderStatus(%s, %q) = %s, want %s", tc.provider, tc.raw, got, tc.want)
			}
		}
	})

	t.Run("unknown raw status maps to processing", func(t *testing.T) {
		if got := MapProviderStatus(models.ProviderStripe, "brand_new_status"); got != models.PaymentProcessing {
			t.Fatalf("got %s, want %s", got, models.PaymentProcessing)
		}
	})

	t.Run("unknown provider maps to processing", func(t *testing.T) {
		if got := MapProviderStatus(models.PaymentProvider("paypal"), "paid"); got != models.PaymentProcessing {
			t.Fatalf("got %s, want %s", got, models.PaymentProcessing)
		}
	})
}

func TestApply(t *testing.T) {
	newTx := func(t *testing.T) (*sql.Tx, sqlmock.Sqlmock, func()) {
		t.Helper()
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		mock.ExpectBegin()
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		return tx, mock, func() { db.Close() }
	}

	t.Run("sets terminal timestamp column", func(t *testing.T) {
		tx, mock, done := newTx(t)
		defer done()

		mock.ExpectExec(`UPDATE payments SET status = \?, paid_at = NOW\(\) WHERE id = \? AND status = \?`).
			WithArgs("completed", "pay-1", "processing").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := Apply(context.Background(), tx, "pay-1", models.PaymentProcessing, models.PaymentCompleted); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("expectations: %v", err)
		}
	})

	t.Run("concurrent writer wins", func(t *testing.T) {
		tx, mock, done := newTx(t)
		defer done()

		mock.ExpectExec(`UPDATE payments SET status = \?, failed_at = NOW\(\) WHERE id = \? AND status = \?`).
			WithArgs("failed", "pay-2", "processing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := Apply(context.Background(), tx, "pay-2", models.PaymentProcessing, models.PaymentFailed)
		if !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("expected sql.ErrNoRows, got %v", err)
		}
	})

	t.Run("rejects illegal transition without touching the db", func(t *testing.T) {
		tx, _, done := newTx(t)
		defer done()

		if err := Apply(context.Background(), tx, "pay-3", models.PaymentCompleted, models.PaymentFailed); err == nil {
			t.Fatal("expected error for completed -> failed")
		}
	})
}
