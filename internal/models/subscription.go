package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionExpired  SubscriptionStatus = "expired"
)

// Subscription is the user's current plan entitlement. At most one row exists
// per user (unique index on user_id); it is mutated only by the activator in
// response to a verified completed payment, never by direct client calls.
type Subscription struct {
	ID                int64              `json:"id"`
	UserID            int                `json:"user_id"`
	PlanType          PlanType           `json:"plan_type"`
	Status            SubscriptionStatus `json:"status"`
	PeriodStart       time.Time          `json:"period_start"`
	PeriodEnd         time.Time          `json:"period_end"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
	LastPaymentID     string             `json:"last_payment_id,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         *time.Time         `json:"updated_at,omitempty"`
}

// ActiveNow reports whether the subscription grants entitlement at time now.
func (s Subscription) ActiveNow(now time.Time) bool {
	return s.Status == SubscriptionActive && s.PeriodEnd.After(now)
}
