package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"rpchubBack/internal/models"
	"rpchubBack/internal/repositories"
)

// SubscriptionService grants plan entitlement. Activation happens only as a
// consequence of a verified completed payment; it never trusts its caller and
// re-validates the payment row itself.
type SubscriptionService struct {
	Repo        *repositories.SubscriptionRepository
	PaymentRepo *repositories.PaymentRepository
	Logger      *slog.Logger
}

func (s *SubscriptionService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// ActivateTx sets the user's subscription to active with a fresh monthly
// billing period. Safe to invoke repeatedly for the same payment: once a
// payment has activated the subscription, re-invocation is a no-op and does
// not extend the period.
func (s *SubscriptionService) ActivateTx(ctx context.Context, tx *sql.Tx, userID int, plan models.PlanType, paymentID, externalPaymentID string) error {
	payment, err := s.PaymentRepo.GetByIDTx(ctx, tx, paymentID)
	if err != nil {
		return err
	}
	if payment.UserID != userID {
		s.logger().Warn("activation ownership mismatch",
			"payment_id", paymentID, "payment_user", payment.UserID, "target_user", userID)
		return models.ErrForbidden
	}
	if payment.Status != models.PaymentCompleted {
		return fmt.Errorf("subscription: payment %s is %s, not completed", paymentID, payment.Status)
	}

	existing, err := s.Repo.GetByUserTx(ctx, tx, userID)
	if err == nil && existing.LastPaymentID == paymentID && existing.Status == models.SubscriptionActive {
		// Уже активировано этим платежом — повтор не продлевает период.
		return nil
	}
	if err != nil && err != models.ErrSubscriptionNotFound {
		return err
	}

	now := time.Now()
	sub := models.Subscription{
		UserID:        userID,
		PlanType:      plan,
		Status:        models.SubscriptionActive,
		PeriodStart:   now,
		PeriodEnd:     now.AddDate(0, 1, 0),
		LastPaymentID: paymentID,
	}
	if err := s.Repo.ActivateTx(ctx, tx, sub); err != nil {
		return err
	}
	s.logger().Info("subscription activated",
		"user_id", userID, "plan", plan, "payment_id", paymentID, "external_id", externalPaymentID)
	return nil
}

// CancelTx marks the user's subscription canceled in response to a provider
// cancellation event. Entitlement keeps running until period end.
func (s *SubscriptionService) CancelTx(ctx context.Context, tx *sql.Tx, userID int) error {
	return s.Repo.CancelTx(ctx, tx, userID)
}

func (s *SubscriptionService) GetByUser(ctx context.Context, userID int) (models.Subscription, error) {
	sub, err := s.Repo.GetByUser(ctx, userID)
	if err == models.ErrSubscriptionNotFound {
		// Ни одного платежа ещё не было — дефолтный бесплатный план.
		return models.Subscription{
			UserID:   userID,
			PlanType: models.PlanFree,
			Status:   models.SubscriptionInactive,
		}, nil
	}
	return sub, err
}
