package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"rpchubBack/internal/models"
	"rpchubBack/internal/services"
)

type PaymentHandler struct {
	Service *services.PaymentService
}

func NewPaymentHandler(s *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{Service: s}
}

// CreatePayment starts a checkout for the authenticated user.
// POST /payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		http.Error(w, "payments not initialized", http.StatusInternalServerError)
		return
	}

	userID, ok := r.Context().Value("user_id").(int)
	if !ok || userID <= 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Provider string  `json:"provider"`
		Plan     string  `json:"plan"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	provider := models.PaymentProvider(strings.ToLower(strings.TrimSpace(req.Provider)))
	if !models.KnownProvider(provider) {
		http.Error(w, "unknown provider", http.StatusBadRequest)
		return
	}
	plan := models.PlanType(strings.ToLower(strings.TrimSpace(req.Plan)))
	if !models.KnownPlan(plan) || plan == models.PlanFree {
		http.Error(w, "invalid plan", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = "USD"
	}

	payment, ref, err := h.Service.CreatePayment(r.Context(), userID, provider, plan, req.Amount, currency)
	if err != nil {
		http.Error(w, "create payment: "+err.Error(), paymentErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"payment_id":   payment.ID,
		"status":       payment.Status,
		"provider":     payment.Provider,
		"external_id":  ref.ExternalID,
		"redirect_url": ref.RedirectURL,
		"expires_at":   payment.ExpiresAt,
	})
}

func paymentErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrProviderRejected):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrProviderUnavailable):
		return http.StatusBadGateway
	case isForeignKeyConstraintError(err):
		return http.StatusBadRequest
	case isDuplicateKeyError(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GetPayment returns one payment with its transition history.
// GET /payments/:id
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		http.Error(w, "payments not initialized", http.StatusInternalServerError)
		return
	}

	id := r.URL.Query().Get(":id")
	if id == "" {
		http.Error(w, "missing payment id", http.StatusBadRequest)
		return
	}

	payment, err := h.Service.GetPayment(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrPaymentNotFound) {
			http.Error(w, "payment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "get payment: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Чужой платёж не показываем.
	if userID, ok := r.Context().Value("user_id").(int); ok {
		role, _ := r.Context().Value("role").(string)
		if payment.UserID != userID && role != "admin" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	history, err := h.Service.PaymentHistory(r.Context(), id)
	if err != nil {
		http.Error(w, "get history: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"payment": payment,
		"history": history,
	})
}

// ListUserPayments returns the payment log for a user, newest first.
// GET /payments/user/:user_id
func (h *PaymentHandler) ListUserPayments(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		http.Error(w, "payments not initialized", http.StatusInternalServerError)
		return
	}

	userID, err := strconv.Atoi(r.URL.Query().Get(":user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	if authID, ok := r.Context().Value("user_id").(int); ok {
		role, _ := r.Context().Value("role").(string)
		if authID != userID && role != "admin" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	payments, err := h.Service.ListUserPayments(r.Context(), userID)
	if err != nil {
		http.Error(w, "list payments: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payments)
}
