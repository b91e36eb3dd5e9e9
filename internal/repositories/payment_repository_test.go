package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"rpchubBack/internal/models"
)

func TestPaymentRepositoryGetByID(t *testing.T) {
	columns := []string{
		"id", "user_id", "provider", "amount", "currency", "status", "plan_type",
		"external_id", "metadata", "created_at", "paid_at", "failed_at",
		"canceled_at", "expired_at", "expires_at",
	}

	t.Run("scans full row", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		defer db.Close()
		repo := NewPaymentRepository(db)

		now := time.Now()
		paidAt := now.Add(time.Minute)
		mock.ExpectQuery(`SELECT .+ FROM payments WHERE id = \?`).
			WithArgs("pay-1").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(
				"pay-1", 42, "coinpay", 49.99, "USD", "completed", "pro",
				"inv_9", `{"plan":"pro"}`, now, paidAt, nil, nil, nil, now.Add(24*time.Hour)))

		p, err := repo.GetByID(context.Background(), "pay-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Provider != models.ProviderCoinpay {
			t.Fatalf("expected coinpay, got %s", p.Provider)
		}
		if p.Status != models.PaymentCompleted {
			t.Fatalf("expected completed, got %s", p.Status)
		}
		if p.ExternalID != "inv_9" {
			t.Fatalf("expected inv_9, got %s", p.ExternalID)
		}
		if p.Metadata["plan"] != "pro" {
			t.Fatalf("expected metadata plan=pro, got %v", p.Metadata)
		}
		if p.PaidAt == nil || !p.PaidAt.Equal(paidAt) {
			t.Fatalf("expected paid_at %v, got %v", paidAt, p.PaidAt)
		}
		if p.FailedAt != nil {
			t.Fatalf("expected nil failed_at, got %v", p.FailedAt)
		}
	})

	t.Run("missing row maps to ErrPaymentNotFound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		defer db.Close()
		repo := NewPaymentRepository(db)

		mock.ExpectQuery(`SELECT .+ FROM payments WHERE id = \?`).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(columns))

		_, err = repo.GetByID(context.Background(), "nope")
		if !errors.Is(err, models.ErrPaymentNotFound) {
			t.Fatalf("expected ErrPaymentNotFound, got %v", err)
		}
	})
}

func TestPaymentRepositoryListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewPaymentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "provider", "amount", "currency", "status", "plan_type",
		"external_id", "metadata", "created_at", "paid_at", "failed_at",
		"canceled_at", "expired_at", "expires_at",
	}).
		AddRow("pay-2", 42, "stripe", 9.99, "USD", "pending", "starter", nil, nil, now, nil, nil, nil, nil, now.Add(24*time.Hour)).
		AddRow("pay-1", 42, "stripe", 49.99, "USD", "completed", "pro", "cs_1", nil, now.Add(-time.Hour), now, nil, nil, nil, now.Add(23*time.Hour))

	mock.ExpectQuery(`SELECT .+ FROM payments WHERE user_id = \? ORDER BY created_at DESC`).
		WithArgs(42).
		WillReturnRows(rows)

	payments, err := repo.ListByUser(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
	if payments[0].ID != "pay-2" || payments[1].ID != "pay-1" {
		t.Fatalf("unexpected order: %s, %s", payments[0].ID, payments[1].ID)
	}
}

func TestPaymentRepositoryExpireStaleWritesHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewPaymentRepository(db)

	now := time.Now()
	// One history row per expired payment, in the same transaction as the
	// status flip.
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO payment_history .+ SELECT id, amount, currency, \?, 'checkout window elapsed', NOW\(\)\s+FROM payments WHERE status = \? AND expires_at < \?`).
		WithArgs("expired", "pending", now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`UPDATE payments SET status = \?, expired_at = NOW\(\) WHERE status = \? AND expires_at < \?`).
		WithArgs("expired", "pending", now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := repo.ExpireStale(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 expired payments, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPaymentRepositoryExpireStaleRollsBackOnUpdateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewPaymentRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO payment_history`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE payments SET status = \?, expired_at = NOW\(\)`).
		WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	if _, err := repo.ExpireStale(context.Background(), now); err == nil {
		t.Fatal("expected error, got nil")
	}
	// No commit: the orphaned history rows never become visible.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
