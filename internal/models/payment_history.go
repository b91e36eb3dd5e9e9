package models

import "time"

// PaymentHistory is the append-only audit trail of payment status changes.
// Rows are immutable once written: every transition produces exactly one row.
type PaymentHistory struct {
	ID          int64         `json:"id"`
	PaymentID   string        `json:"payment_id"`
	Amount      float64       `json:"amount"`
	Currency    string        `json:"currency"`
	Status      PaymentStatus `json:"status"`
	Description string        `json:"description"`
	CreatedAt   time.Time     `json:"created_at"`
}
