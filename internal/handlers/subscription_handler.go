package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"rpchubBack/internal/services"
)

type SubscriptionHandler struct {
	Service *services.SubscriptionService
}

func NewSubscriptionHandler(s *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{Service: s}
}

// GetSubscription returns subscription info for the specified user.
// Users without a row get the implicit free/inactive subscription.
// GET /subscriptions/user/:user_id
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userIDStr := r.URL.Query().Get(":user_id")
	userID, err := strconv.Atoi(userIDStr)
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

	sub, err := h.Service.GetByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

// GetMySubscription is the authenticated shortcut for the caller's own plan.
// GET /subscriptions/me
func (h *SubscriptionHandler) GetMySubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, "user not authorized", http.StatusUnauthorized)
		return
	}

	sub, err := h.Service.GetByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}
