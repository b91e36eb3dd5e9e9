package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"rpchubBack/internal/models"
	"rpchubBack/internal/repositories"
)

func newSubscriptionServiceForTest(t *testing.T) (*SubscriptionService, *sql.Tx, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	svc := &SubscriptionService{
		Repo:        repositories.NewSubscriptionRepository(db),
		PaymentRepo: repositories.NewPaymentRepository(db),
	}

	mock.ExpectBegin()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return svc, tx, mock, func() { db.Close() }
}

var subscriptionColumns = []string{
	"id", "user_id", "plan_type", "status", "period_start", "period_end",
	"cancel_at_period_end", "last_payment_id", "created_at", "updated_at",
}

func TestActivateTxRejectsForeignPayment(t *testing.T) {
	svc, tx, mock, done := newSubscriptionServiceForTest(t)
	defer done()

	// Платёж принадлежит другому пользователю — активация запрещена.
	mock.ExpectQuery(`SELECT .+ FROM payments WHERE id = \?`).
		WithArgs("pay-1").
		WillReturnRows(paymentRow("pay-1", 99, "stripe", "completed", "pro", 49.99))

	err := svc.ActivateTx(context.Background(), tx, 42, models.PlanPro, "pay-1", "cs_1")
	if !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// No subscription read, no upsert.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestActivateTxRejectsNonCompletedPayment(t *testing.T) {
	svc, tx, mock, done := newSubscriptionServiceForTest(t)
	defer done()

	mock.ExpectQuery(`SELECT .+ FROM payments WHERE id = \?`).
		WithArgs("pay-1").
		WillReturnRows(paymentRow("pay-1", 42, "stripe", "processing", "pro", 49.99))

	err := svc.ActivateTx(context.Background(), tx, 42, models.PlanPro, "pay-1", "cs_1")
	if err == nil {
		t.Fatal("expected error for non-completed payment, got nil")
	}
	if errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected status error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestActivateTxRepeatDoesNotExtendPeriod(t *testing.T) {
	svc, tx, mock, done := newSubscriptionServiceForTest(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM payments WHERE id = \?`).
		WithArgs("pay-1").
		WillReturnRows(paymentRow("pay-1", 42, "stripe", "completed", "pro", 49.99))
	// Подписка уже активирована этим же платежом.
	mock.ExpectQuery(`SELECT .+ FROM subscriptions WHERE user_id = \?`).
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns).AddRow(
			1, 42, "pro", "active", now.AddDate(0, 0, -3), now.AddDate(0, 0, 27),
			false, "pay-1", now.AddDate(0, 0, -3), nil))

	// No INSERT expectation: a repeat for the same payment must be a no-op.
	if err := svc.ActivateTx(context.Background(), tx, 42, models.PlanPro, "pay-1", "cs_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestActivateTxFreshActivationUpserts(t *testing.T) {
	svc, tx, mock, done := newSubscriptionServiceForTest(t)
	defer done()

	mock.ExpectQuery(`SELECT .+ FROM payments WHERE id = \?`).
		WithArgs("pay-2").
		WillReturnRows(paymentRow("pay-2", 42, "stripe", "completed", "pro", 49.99))
	mock.ExpectQuery(`SELECT .+ FROM subscriptions WHERE user_id = \?`).
		WithArgs(42).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO subscriptions`).
		WithArgs(42, "pro", "active", sqlmock.AnyArg(), sqlmock.AnyArg(), "pay-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := svc.ActivateTx(context.Background(), tx, 42, models.PlanPro, "pay-2", "cs_2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
