package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"rpchubBack/internal/models"
	"rpchubBack/internal/services"
	"rpchubBack/utils"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type WebhookHandler struct {
	Service *services.PaymentService
	Logger  *slog.Logger
}

func NewWebhookHandler(s *services.PaymentService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{Service: s, Logger: logger}
}

// Receive is the single ingress for provider callbacks:
// POST /payments/webhooks/:provider. The response code is the contract with
// the provider's retry machinery: 200 settles the delivery (including
// duplicates and discards), 4xx means retrying is pointless, 503 asks the
// provider to try again later.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		http.Error(w, "payments not initialized", http.StatusInternalServerError)
		return
	}

	provider := models.PaymentProvider(r.URL.Query().Get(":provider"))
	if !models.KnownProvider(provider) {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}
	if _, ok := h.Service.Adapter(provider); !ok {
		http.Error(w, "provider not configured", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.Service.ProcessWebhook(r.Context(), provider, body, r.Header)
	if err != nil {
		// Архив не должен задерживать ответ провайдеру.
		go h.archive(provider, "", body)
		http.Error(w, err.Error(), webhookErrorStatus(err))
		return
	}

	go h.archive(provider, res.EventID, body)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     res.Status,
		"payment_id": res.PaymentID,
	})
}

func webhookErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrPaymentNotFound):
		return http.StatusNotFound
	case models.IsRetryable(err):
		// Transient failure on our side; the provider should redeliver.
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// archive is best-effort: a missed audit copy never affects the response.
func (h *WebhookHandler) archive(provider models.PaymentProvider, eventID string, body []byte) {
	if !utils.S3Configured() {
		return
	}
	if _, err := utils.ArchiveWebhookPayload(string(provider), eventID, body); err != nil && h.Logger != nil {
		h.Logger.Warn("webhook archive failed", "provider", provider, "err", err)
	}
}
