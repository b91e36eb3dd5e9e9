package models

import (
	"encoding/json"
	"time"
)

type PaymentProvider string

const (
	ProviderStripe   PaymentProvider = "stripe"
	ProviderCoinpay  PaymentProvider = "coinpay"
	ProviderAirbapay PaymentProvider = "airbapay"
)

// KnownProvider reports whether p is one of the supported payment networks.
func KnownProvider(p PaymentProvider) bool {
	switch p {
	case ProviderStripe, ProviderCoinpay, ProviderAirbapay:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCanceled   PaymentStatus = "canceled"
	PaymentExpired    PaymentStatus = "expired"
)

type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanStarter    PlanType = "starter"
	PlanPro        PlanType = "pro"
	PlanEnterprise PlanType = "enterprise"
)

func KnownPlan(p PlanType) bool {
	switch p {
	case PlanFree, PlanStarter, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Payment represents one attempted purchase of a plan.
type Payment struct {
	ID         string            `json:"id"`
	UserID     int               `json:"user_id"`
	Provider   PaymentProvider   `json:"provider"`
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency"`
	Status     PaymentStatus     `json:"status"`
	PlanType   PlanType          `json:"plan_type"`
	ExternalID string            `json:"external_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	PaidAt     *time.Time        `json:"paid_at,omitempty"`
	FailedAt   *time.Time        `json:"failed_at,omitempty"`
	CanceledAt *time.Time        `json:"canceled_at,omitempty"`
	ExpiredAt  *time.Time        `json:"expired_at,omitempty"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// CheckoutRef is what a provider hands back after a checkout resource is created.
type CheckoutRef struct {
	ExternalID  string          `json:"external_id"`
	RedirectURL string          `json:"redirect_url"`
	Raw         json.RawMessage `json:"-"`
}

// NormalizedEvent is the provider-independent form of a verified webhook delivery.
type NormalizedEvent struct {
	Provider          PaymentProvider   `json:"provider"`
	ExternalEventID   string            `json:"external_event_id"`
	EventType         string            `json:"event_type"`
	ExternalPaymentID string            `json:"external_payment_id"`
	PaymentID         string            `json:"payment_id,omitempty"`
	RawStatus         string            `json:"raw_status"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Raw               json.RawMessage   `json:"-"`
}
