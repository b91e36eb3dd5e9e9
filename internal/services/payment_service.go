package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"rpchubBack/internal/fsm"
	"rpchubBack/internal/models"
	"rpchubBack/internal/repositories"
)

// WebhookResult describes the settled outcome of one delivery.
type WebhookResult struct {
	// One of: processed, duplicate, ignored, discarded.
	Status    string
	PaymentID string
	// EventID is the provider-assigned event id, when the delivery carried one.
	EventID   string
	Activated bool
}

// PaymentService is the reconciliation orchestrator: it owns every mutation
// of Payment rows. Client-facing endpoints never touch payment state except
// through CreatePayment, and status only ever moves in response to a
// verified webhook.
type PaymentService struct {
	DB       *sql.DB
	Adapters map[models.PaymentProvider]ProviderAdapter

	PaymentRepo *repositories.PaymentRepository
	WebhookRepo *repositories.WebhookEventRepository
	HistoryRepo *repositories.PaymentHistoryRepository
	UserRepo    *repositories.UserRepository
	Activator   *SubscriptionService

	Cache    *WebhookCache        // optional fast-path dedupe
	Notifier *NotificationService // optional, best-effort

	// Окно, в течение которого провайдер должен подтвердить оплату.
	ExpiryWindow time.Duration

	Logger *slog.Logger
}

func (s *PaymentService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *PaymentService) expiryWindow() time.Duration {
	if s.ExpiryWindow > 0 {
		return s.ExpiryWindow
	}
	return 24 * time.Hour
}

// Adapter resolves the adapter for a provider, if one is configured.
func (s *PaymentService) Adapter(provider models.PaymentProvider) (ProviderAdapter, bool) {
	a, ok := s.Adapters[provider]
	return a, ok
}

// CreatePayment durably records a pending payment, then asks the provider
// for a checkout resource. Provider failure leaves the payment pending; no
// local state is mutated before the row exists.
func (s *PaymentService) CreatePayment(ctx context.Context, userID int, provider models.PaymentProvider, plan models.PlanType, amount float64, currency string) (models.Payment, models.CheckoutRef, error) {
	adapter, ok := s.Adapters[provider]
	if !ok {
		return models.Payment{}, models.CheckoutRef{}, fmt.Errorf("%w: provider %q not configured", models.ErrProviderUnavailable, provider)
	}

	user, err := s.UserRepo.GetByID(ctx, userID)
	if err != nil {
		return models.Payment{}, models.CheckoutRef{}, err
	}

	now := time.Now()
	p := models.Payment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Provider:  provider,
		Amount:    amount,
		Currency:  strings.ToUpper(currency),
		Status:    models.PaymentPending,
		PlanType:  plan,
		CreatedAt: now,
		ExpiresAt: now.Add(s.expiryWindow()),
	}
	if err := s.PaymentRepo.Create(ctx, p); err != nil {
		return models.Payment{}, models.CheckoutRef{}, fmt.Errorf("create payment: %w", err)
	}

	ref, err := adapter.CreateCheckout(ctx, p, user.Email)
	if err != nil {
		s.logger().Error("checkout creation failed", "payment_id", p.ID, "provider", provider, "err", err)
		return p, models.CheckoutRef{}, err
	}

	if err := s.PaymentRepo.SetExternalID(ctx, p.ID, ref.ExternalID); err != nil {
		s.logger().Error("failed to store external id", "payment_id", p.ID, "err", err)
	}
	p.ExternalID = ref.ExternalID

	return p, ref, nil
}

// ProcessWebhook runs one inbound delivery through verification, the
// idempotency gate, status mapping and the single transactional apply.
func (s *PaymentService) ProcessWebhook(ctx context.Context, provider models.PaymentProvider, body []byte, header http.Header) (WebhookResult, error) {
	adapter, ok := s.Adapters[provider]
	if !ok {
		return WebhookResult{}, fmt.Errorf("%w: provider %q", models.ErrNoRecord, provider)
	}

	// Никакой строки в webhook_events для неверифицируемых данных:
	// подписные сбои не должны засорять журнал идемпотентности.
	ev, err := adapter.ParseWebhook(body, header)
	if err != nil {
		s.logger().Warn("webhook rejected", "provider", provider, "err", err)
		return WebhookResult{}, err
	}

	if ev.ExternalEventID == "" || (ev.PaymentID == "" && ev.ExternalPaymentID == "") {
		// Verified but carries no payment reference (e.g. an event type we
		// do not handle).
		s.logger().Info("webhook ignored", "provider", provider, "event_type", ev.EventType)
		return WebhookResult{Status: "ignored"}, nil
	}

	if s.Cache.AlreadyProcessed(ctx, provider, ev.ExternalEventID) {
		return WebhookResult{Status: "duplicate", EventID: ev.ExternalEventID}, nil
	}

	row, created, err := s.WebhookRepo.InsertOrGet(ctx, models.WebhookEvent{
		Provider:        provider,
		ExternalEventID: ev.ExternalEventID,
		EventType:       ev.EventType,
		RawPayload:      ev.Raw,
	})
	if err != nil {
		return WebhookResult{}, fmt.Errorf("webhook event insert: %w", err)
	}
	if !created && row.Processed {
		// Повторная доставка уже обработанного события.
		s.Cache.MarkProcessed(ctx, provider, ev.ExternalEventID)
		return WebhookResult{Status: "duplicate", EventID: ev.ExternalEventID}, nil
	}
	// Либо свежая строка, либо прошлый заход упал на полпути — дорабатываем
	// существующую строку вместо повторного учёта.

	res, err := s.apply(ctx, row, ev)
	if err != nil {
		if mErr := s.WebhookRepo.MarkFailed(ctx, row.ID, err.Error()); mErr != nil {
			s.logger().Error("failed to record webhook failure", "event_id", row.ID, "err", mErr)
		}
		return WebhookResult{}, err
	}

	s.Cache.MarkProcessed(ctx, provider, ev.ExternalEventID)

	if res.Activated && s.Notifier != nil {
		nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if payment, perr := s.PaymentRepo.GetByID(nctx, res.PaymentID); perr == nil {
			if nerr := s.Notifier.SendActivation(nctx, payment.UserID, payment.PlanType); nerr != nil {
				s.logger().Warn("activation push failed", "payment_id", res.PaymentID, "err", nerr)
			}
		}
	}

	return res, nil
}

func (s *PaymentService) lookupPayment(ctx context.Context, ev models.NormalizedEvent) (models.Payment, error) {
	if ev.PaymentID != "" {
		p, err := s.PaymentRepo.GetByID(ctx, ev.PaymentID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, models.ErrPaymentNotFound) {
			return models.Payment{}, err
		}
	}
	if ev.ExternalPaymentID != "" {
		return s.PaymentRepo.GetByExternalID(ctx, ev.Provider, ev.ExternalPaymentID)
	}
	return models.Payment{}, models.ErrPaymentNotFound
}

// apply performs the transactional unit: payment status, history row,
// processed flag and — for a completed paid plan — subscription activation
// commit or roll back together. A partial apply is the bug class this
// whole design exists to prevent.
func (s *PaymentService) apply(ctx context.Context, row models.WebhookEvent, ev models.NormalizedEvent) (WebhookResult, error) {
	payment, err := s.lookupPayment(ctx, ev)
	if err != nil {
		return WebhookResult{}, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if ev.EventType == EventTypeSubscriptionCanceled {
		if err := s.Activator.CancelTx(ctx, tx, payment.UserID); err != nil && !errors.Is(err, models.ErrSubscriptionNotFound) {
			return WebhookResult{}, err
		}
		if err := s.WebhookRepo.MarkProcessedTx(ctx, tx, row.ID); err != nil {
			return WebhookResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return WebhookResult{}, fmt.Errorf("commit: %w", err)
		}
		return WebhookResult{Status: "processed", PaymentID: payment.ID, EventID: row.ExternalEventID}, nil
	}

	newStatus := fsm.MapProviderStatus(ev.Provider, ev.RawStatus)

	settle := func(status string) (WebhookResult, error) {
		if err := s.WebhookRepo.MarkProcessedTx(ctx, tx, row.ID); err != nil {
			return WebhookResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return WebhookResult{}, fmt.Errorf("commit: %w", err)
		}
		return WebhookResult{Status: status, PaymentID: payment.ID, EventID: row.ExternalEventID}, nil
	}

	if newStatus == payment.Status {
		// Тот же статус под новым event id — состояние уже такое, просто
		// закрываем доставку.
		return settle("processed")
	}
	if fsm.Terminal(payment.Status) || !fsm.CanTransition(payment.Status, newStatus) {
		// Терминальный статус не перезаписывается; опоздавший или
		// внеочередной вебхук фиксируем и отбрасываем, не возвращая ошибку
		// провайдеру — иначе он будет ретраить уже решённое событие вечно.
		s.logger().Warn("discarding status transition",
			"payment_id", payment.ID, "from", payment.Status, "to", newStatus,
			"provider", ev.Provider, "event", ev.ExternalEventID)
		return settle("discarded")
	}

	if err := fsm.Apply(ctx, tx, payment.ID, payment.Status, newStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Конкурирующая доставка успела изменить статус — этот заход
			// проиграл гонку, закрываем без мутаций.
			s.logger().Warn("lost status race", "payment_id", payment.ID, "to", newStatus)
			return settle("discarded")
		}
		return WebhookResult{}, err
	}

	if err := s.HistoryRepo.AppendTx(ctx, tx, models.PaymentHistory{
		PaymentID:   payment.ID,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Status:      newStatus,
		Description: fmt.Sprintf("%s webhook %s (%s)", ev.Provider, ev.EventType, ev.ExternalEventID),
	}); err != nil {
		return WebhookResult{}, err
	}

	if err := s.WebhookRepo.MarkProcessedTx(ctx, tx, row.ID); err != nil {
		return WebhookResult{}, err
	}

	activated := false
	if newStatus == models.PaymentCompleted && payment.PlanType != "" && payment.PlanType != models.PlanFree {
		if err := s.Activator.ActivateTx(ctx, tx, payment.UserID, payment.PlanType, payment.ID, ev.ExternalPaymentID); err != nil {
			return WebhookResult{}, err
		}
		activated = true
	}

	if err := tx.Commit(); err != nil {
		return WebhookResult{}, fmt.Errorf("commit: %w", err)
	}

	return WebhookResult{Status: "processed", PaymentID: payment.ID, EventID: row.ExternalEventID, Activated: activated}, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id string) (models.Payment, error) {
	return s.PaymentRepo.GetByID(ctx, id)
}

func (s *PaymentService) ListUserPayments(ctx context.Context, userID int) ([]models.Payment, error) {
	return s.PaymentRepo.ListByUser(ctx, userID)
}

func (s *PaymentService) PaymentHistory(ctx context.Context, paymentID string) ([]models.PaymentHistory, error) {
	return s.HistoryRepo.ListByPayment(ctx, paymentID)
}
