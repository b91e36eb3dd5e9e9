package fsm

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"rpchubBack/internal/models"
)

// Canonical payment statuses form a small lattice:
// pending -> processing -> {completed | failed | canceled | expired}.
var transitions = map[models.PaymentStatus]map[models.PaymentStatus]struct{}{
	models.PaymentPending: {
		models.PaymentProcessing: {},
		models.PaymentCompleted:  {},
		models.PaymentFailed:     {},
		models.PaymentCanceled:   {},
		models.PaymentExpired:    {},
	},
	models.PaymentProcessing: {
		models.PaymentCompleted: {},
		models.PaymentFailed:    {},
		models.PaymentCanceled:  {},
		models.PaymentExpired:   {},
	},
	models.PaymentCompleted: {},
	models.PaymentFailed:    {},
	models.PaymentCanceled:  {},
	models.PaymentExpired:   {},
}

// Terminal reports whether the status can never change again.
func Terminal(s models.PaymentStatus) bool {
	switch s {
	case models.PaymentCompleted, models.PaymentFailed, models.PaymentCanceled, models.PaymentExpired:
		return true
	}
	return false
}

// CanTransition returns whether a payment can move from the current status to
// the target status. Same-status is allowed (idempotent re-application).
func CanTransition(from, to models.PaymentStatus) bool {
	if from == to {
		return true
	}
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// timestampColumn names the terminal timestamp column a status sets, if any.
func timestampColumn(s models.PaymentStatus) string {
	switch s {
	case models.PaymentCompleted:
		return "paid_at"
	case models.PaymentFailed:
		return "failed_at"
	case models.PaymentCanceled:
		return "canceled_at"
	case models.PaymentExpired:
		return "expired_at"
	}
	return ""
}

// Apply updates a payment status using optimistic validation: the UPDATE is
// guarded by the current status so a concurrent writer loses cleanly.
func Apply(ctx context.Context, tx *sql.Tx, paymentID string, from, to models.PaymentStatus) error {
	if !CanTransition(from, to) {
		return errors.New("invalid status transition")
	}
	q := `UPDATE payments SET status = ?`
	if col := timestampColumn(to); col != "" {
		q += `, ` + col + ` = NOW()`
	}
	q += ` WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, string(to), paymentID, string(from))
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Per-provider raw status vocabularies folded into the canonical set.
// Unknown raw values map to processing, never silently to completed.
var providerStatuses = map[models.PaymentProvider]map[string]models.PaymentStatus{
	models.ProviderStripe: {
		"open":                       models.PaymentPending,
		"unpaid":                     models.PaymentPending,
		"no_payment_required":        models.PaymentPending,
		"processing":                 models.PaymentProcessing,
		"paid":                       models.PaymentCompleted,
		"complete":                   models.PaymentCompleted,
		"succeeded":                  models.PaymentCompleted,
		"checkout.session.completed": models.PaymentCompleted,
		"payment_failed":             models.PaymentFailed,
		"failed":                     models.PaymentFailed,
		"canceled":                   models.PaymentCanceled,
		"expired":                    models.PaymentExpired,
	},
	models.ProviderCoinpay: {
		"waiting":          models.PaymentPending,
		"confirming":       models.PaymentProcessing,
		"sending":          models.PaymentProcessing,
		"partially_paid":   models.PaymentProcessing,
		"confirmed":        models.PaymentCompleted,
		"finished":         models.PaymentCompleted,
		"charge confirmed": models.PaymentCompleted,
		"failed":           models.PaymentFailed,
		"refunded":         models.PaymentCanceled,
		"canceled":         models.PaymentCanceled,
		"expired":          models.PaymentExpired,
	},
	models.ProviderAirbapay: {
		"new":        models.PaymentPending,
		"auth":       models.PaymentPending,
		"in_process": models.PaymentProcessing,
		"processing": models.PaymentProcessing,
		"success":    models.PaymentCompleted,
		"succeeded":  models.PaymentCompleted,
		"paid":       models.PaymentCompleted,
		"done":       models.PaymentCompleted,
		"approved":   models.PaymentCompleted,
		"failure":    models.PaymentFailed,
		"failed":     models.PaymentFailed,
		"rejected":   models.PaymentFailed,
		"error":      models.PaymentFailed,
		"cancelled":  models.PaymentCanceled,
		"canceled":   models.PaymentCanceled,
		"expired":    models.PaymentExpired,
	},
}

// MapProviderStatus folds a provider-specific raw status string into the
// canonical vocabulary. Unrecognized values resolve to processing so a new
// provider-side status can never grant entitlement on its own.
func MapProviderStatus(provider models.PaymentProvider, raw string) models.PaymentStatus {
	table, ok := providerStatuses[provider]
	if !ok {
		return models.PaymentProcessing
	}
	status, ok := table[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return models.PaymentProcessing
	}
	return status
}
