package repositories

import (
	"context"
	"database/sql"
	"time"

	"rpchubBack/internal/models"
)

type PaymentHistoryRepository struct {
	DB *sql.DB
}

func NewPaymentHistoryRepository(db *sql.DB) *PaymentHistoryRepository {
	return &PaymentHistoryRepository{DB: db}
}

// AppendTx writes one audit row for a status transition. Append-only; there
// is deliberately no update or delete here.
func (r *PaymentHistoryRepository) AppendTx(ctx context.Context, tx *sql.Tx, h models.PaymentHistory) error {
	const q = `INSERT INTO payment_history (payment_id, amount, currency, status, description, created_at)
               VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, h.PaymentID, h.Amount, h.Currency, string(h.Status), h.Description, time.Now())
	return err
}

func (r *PaymentHistoryRepository) ListByPayment(ctx context.Context, paymentID string) ([]models.PaymentHistory, error) {
	const q = `SELECT id, payment_id, amount, currency, status, description, created_at
               FROM payment_history WHERE payment_id = ? ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, q, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.PaymentHistory
	for rows.Next() {
		var (
			h      models.PaymentHistory
			status string
		)
		if err := rows.Scan(&h.ID, &h.PaymentID, &h.Amount, &h.Currency, &status, &h.Description, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Status = models.PaymentStatus(status)
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
