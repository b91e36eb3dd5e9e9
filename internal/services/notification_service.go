package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"firebase.google.com/go/messaging"

	"rpchubBack/internal/models"
)

// NotificationService sends the "subscription activated" push. Strictly
// best-effort: a delivery failure never affects reconciliation.
type NotificationService struct {
	Client *messaging.Client
	DB     *sql.DB
	Logger *slog.Logger
}

func NewNotificationService(client *messaging.Client, db *sql.DB, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{Client: client, DB: db, Logger: logger}
}

func (s *NotificationService) deviceToken(ctx context.Context, userID int) (string, error) {
	var token string
	err := s.DB.QueryRowContext(ctx,
		`SELECT token FROM fcm_tokens WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`, userID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrNoRecord
	}
	return token, err
}

func (s *NotificationService) SendActivation(ctx context.Context, userID int, plan models.PlanType) error {
	if s == nil || s.Client == nil {
		return nil
	}
	token, err := s.deviceToken(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNoRecord) {
			return nil
		}
		return err
	}

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: "Subscription activated",
			Body:  fmt.Sprintf("Your %s plan is now active.", plan),
		},
		Data: map[string]string{
			"link": "/account/subscription",
			"plan": string(plan),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	if _, err := s.Client.Send(ctx, message); err != nil {
		s.Logger.Error("fcm send failed", "user_id", userID, "err", err)
		return err
	}
	return nil
}
