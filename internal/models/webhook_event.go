package models

import "time"

// WebhookEvent represents one inbound notification delivery.
// The pair (provider, external_event_id) is unique and is the idempotency key.
type WebhookEvent struct {
	ID              int64           `json:"id"`
	Provider        PaymentProvider `json:"provider"`
	ExternalEventID string          `json:"external_event_id"`
	EventType       string          `json:"event_type"`
	RawPayload      []byte          `json:"-"`
	Processed       bool            `json:"processed"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	RetryCount      int             `json:"retry_count"`
	CreatedAt       time.Time       `json:"created_at"`
}
