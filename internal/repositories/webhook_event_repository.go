package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"rpchubBack/internal/models"
)

type WebhookEventRepository struct {
	DB *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{DB: db}
}

// InsertOrGet attempts to insert a new delivery row. The unique index on
// (provider, external_event_id) is the source of truth for exactly-once
// effect: when two deliveries race, exactly one insert wins and the loser
// reads the existing row back. Returns the stored event and whether this
// call created it.
func (r *WebhookEventRepository) InsertOrGet(ctx context.Context, ev models.WebhookEvent) (models.WebhookEvent, bool, error) {
	const q = `INSERT INTO webhook_events (provider, external_event_id, event_type, raw_payload, processed, retry_count, created_at)
               VALUES (?, ?, ?, ?, 0, 0, ?)`
	res, err := r.DB.ExecContext(ctx, q,
		string(ev.Provider), ev.ExternalEventID, ev.EventType, ev.RawPayload, time.Now())
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			existing, gerr := r.GetByExternalEventID(ctx, ev.Provider, ev.ExternalEventID)
			if gerr != nil {
				return models.WebhookEvent{}, false, gerr
			}
			return existing, false, nil
		}
		return models.WebhookEvent{}, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.WebhookEvent{}, false, err
	}
	ev.ID = id
	return ev, true, nil
}

func (r *WebhookEventRepository) GetByExternalEventID(ctx context.Context, provider models.PaymentProvider, externalEventID string) (models.WebhookEvent, error) {
	const q = `SELECT id, provider, external_event_id, event_type, raw_payload, processed, processed_at, error_message, retry_count, created_at
               FROM webhook_events WHERE provider = ? AND external_event_id = ?`
	return scanWebhookEvent(r.DB.QueryRowContext(ctx, q, string(provider), externalEventID))
}

// MarkProcessedTx flips the processed flag inside the reconciliation
// transaction so it commits or rolls back together with the payment update.
func (r *WebhookEventRepository) MarkProcessedTx(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE webhook_events SET processed = 1, processed_at = NOW(), error_message = NULL WHERE id = ?`, id)
	return err
}

// MarkFailed records a processing failure outside any transaction: the row
// stays unprocessed with an incremented retry count so the next delivery
// (or a manual replay) can resume.
func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE webhook_events SET processed = 0, retry_count = retry_count + 1, error_message = ? WHERE id = ?`,
		errMsg, id)
	return err
}

func scanWebhookEvent(row rowScanner) (models.WebhookEvent, error) {
	var (
		ev          models.WebhookEvent
		provider    string
		processedAt sql.NullTime
		errMsg      sql.NullString
	)
	err := row.Scan(&ev.ID, &provider, &ev.ExternalEventID, &ev.EventType, &ev.RawPayload,
		&ev.Processed, &processedAt, &errMsg, &ev.RetryCount, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.WebhookEvent{}, models.ErrNoRecord
		}
		return models.WebhookEvent{}, err
	}
	ev.Provider = models.PaymentProvider(provider)
	ev.ProcessedAt = nullTimePtr(processedAt)
	ev.ErrorMessage = errMsg.String
	return ev, nil
}
