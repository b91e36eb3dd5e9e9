package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"rpchubBack/internal/models"
)

type PaymentRepository struct {
	DB *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository { return &PaymentRepository{DB: db} }

func (r *PaymentRepository) Create(ctx context.Context, p models.Payment) error {
	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return err
	}
	const q = `INSERT INTO payments (id, user_id, provider, amount, currency, status, plan_type, external_id, metadata, created_at, expires_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.DB.ExecContext(ctx, q,
		p.ID, p.UserID, string(p.Provider), p.Amount, p.Currency, string(p.Status),
		string(p.PlanType), nullString(p.ExternalID), meta, p.CreatedAt, p.ExpiresAt)
	return err
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (models.Payment, error) {
	const q = paymentSelect + ` WHERE id = ?`
	return scanPayment(r.DB.QueryRowContext(ctx, q, id))
}

// GetByIDTx re-reads the payment inside a transaction; used by the activator
// to re-validate ownership and status without trusting its caller.
func (r *PaymentRepository) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (models.Payment, error) {
	const q = paymentSelect + ` WHERE id = ?`
	return scanPayment(tx.QueryRowContext(ctx, q, id))
}

// GetByExternalID resolves the provider-assigned reference back to our payment.
func (r *PaymentRepository) GetByExternalID(ctx context.Context, provider models.PaymentProvider, externalID string) (models.Payment, error) {
	const q = paymentSelect + ` WHERE provider = ? AND external_id = ?`
	return scanPayment(r.DB.QueryRowContext(ctx, q, string(provider), externalID))
}

func (r *PaymentRepository) SetExternalID(ctx context.Context, id, externalID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE payments SET external_id = ? WHERE id = ?`, externalID, id)
	return err
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID int) ([]models.Payment, error) {
	const q = paymentSelect + ` WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

// ExpireStale moves payments past their checkout window from pending to
// expired. Processing payments are left alone: the provider may still settle
// them. Каждый переход получает строку в payment_history; выборка и UPDATE
// идут в одной транзакции и видят один и тот же набор строк.
func (r *PaymentRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	const hist = `INSERT INTO payment_history (payment_id, amount, currency, status, description, created_at)
	              SELECT id, amount, currency, ?, 'checkout window elapsed', NOW()
	              FROM payments WHERE status = ? AND expires_at < ?`
	if _, err := tx.ExecContext(ctx, hist,
		string(models.PaymentExpired), string(models.PaymentPending), now); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, expired_at = NOW() WHERE status = ? AND expires_at < ?`,
		string(models.PaymentExpired), string(models.PaymentPending), now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

const paymentSelect = `SELECT id, user_id, provider, amount, currency, status, plan_type, external_id, metadata, created_at, paid_at, failed_at, canceled_at, expired_at, expires_at FROM payments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (models.Payment, error) {
	var (
		p          models.Payment
		provider   string
		status     string
		planType   string
		externalID sql.NullString
		meta       sql.NullString
		paidAt     sql.NullTime
		failedAt   sql.NullTime
		canceledAt sql.NullTime
		expiredAt  sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UserID, &provider, &p.Amount, &p.Currency, &status,
		&planType, &externalID, &meta, &p.CreatedAt, &paidAt, &failedAt, &canceledAt, &expiredAt, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Payment{}, models.ErrPaymentNotFound
		}
		return models.Payment{}, err
	}
	p.Provider = models.PaymentProvider(provider)
	p.Status = models.PaymentStatus(status)
	p.PlanType = models.PlanType(planType)
	p.ExternalID = externalID.String
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &p.Metadata); err != nil {
			return models.Payment{}, err
		}
	}
	p.PaidAt = nullTimePtr(paidAt)
	p.FailedAt = nullTimePtr(failedAt)
	p.CanceledAt = nullTimePtr(canceledAt)
	p.ExpiredAt = nullTimePtr(expiredAt)
	return p, nil
}

func marshalMetadata(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	tt := t.Time
	return &tt
}
