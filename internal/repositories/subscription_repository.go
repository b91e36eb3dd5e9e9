package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rpchubBack/internal/models"
)

type SubscriptionRepository struct {
	DB *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{DB: db}
}

func (r *SubscriptionRepository) GetByUser(ctx context.Context, userID int) (models.Subscription, error) {
	row := r.DB.QueryRowContext(ctx, subscriptionSelect+` WHERE user_id = ?`, userID)
	return scanSubscription(row)
}

func (r *SubscriptionRepository) GetByUserTx(ctx context.Context, tx *sql.Tx, userID int) (models.Subscription, error) {
	row := tx.QueryRowContext(ctx, subscriptionSelect+` WHERE user_id = ?`, userID)
	return scanSubscription(row)
}

// ActivateTx upserts the single subscription row for a user. The unique index
// on user_id keeps "at most one subscription per user" true even when two
// activations race; ON DUPLICATE KEY UPDATE makes the second writer converge
// on the same row instead of failing.
func (r *SubscriptionRepository) ActivateTx(ctx context.Context, tx *sql.Tx, sub models.Subscription) error {
	const q = `INSERT INTO subscriptions (user_id, plan_type, status, period_start, period_end, cancel_at_period_end, last_payment_id, created_at)
               VALUES (?, ?, ?, ?, ?, 0, ?, ?)
               ON DUPLICATE KEY UPDATE
                 plan_type = VALUES(plan_type),
                 status = VALUES(status),
                 period_start = VALUES(period_start),
                 period_end = VALUES(period_end),
                 cancel_at_period_end = 0,
                 last_payment_id = VALUES(last_payment_id),
                 updated_at = NOW()`
	_, err := tx.ExecContext(ctx, q,
		sub.UserID, string(sub.PlanType), string(sub.Status),
		sub.PeriodStart, sub.PeriodEnd, sub.LastPaymentID, time.Now())
	return err
}

// CancelTx marks the subscription canceled in response to a provider-side
// cancellation event. Entitlement runs until period end.
func (r *SubscriptionRepository) CancelTx(ctx context.Context, tx *sql.Tx, userID int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET status = ?, cancel_at_period_end = 1, updated_at = NOW() WHERE user_id = ?`,
		string(models.SubscriptionCanceled), userID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrSubscriptionNotFound
	}
	return nil
}

// ExpireLapsed downgrades active subscriptions whose paid period has ended.
func (r *SubscriptionRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE subscriptions SET status = ?, updated_at = NOW() WHERE status = ? AND period_end < ?`,
		string(models.SubscriptionExpired), string(models.SubscriptionActive), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const subscriptionSelect = `SELECT id, user_id, plan_type, status, period_start, period_end, cancel_at_period_end, last_payment_id, created_at, updated_at FROM subscriptions`

func scanSubscription(row rowScanner) (models.Subscription, error) {
	var (
		sub           models.Subscription
		planType      string
		status        string
		lastPaymentID sql.NullString
		updated       sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.UserID, &planType, &status, &sub.PeriodStart, &sub.PeriodEnd,
		&sub.CancelAtPeriodEnd, &lastPaymentID, &sub.CreatedAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Subscription{}, models.ErrSubscriptionNotFound
		}
		return models.Subscription{}, err
	}
	sub.PlanType = models.PlanType(planType)
	sub.Status = models.SubscriptionStatus(status)
	sub.LastPaymentID = lastPaymentID.String
	sub.UpdatedAt = nullTimePtr(updated)
	return sub, nil
}
