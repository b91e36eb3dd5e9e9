package repositories

import (
	"context"
	"database/sql"
	"errors"

	"rpchubBack/internal/models"
)

// UserRepository is read-only here: account management belongs to another
// service, this core only needs ownership and a checkout email.
type UserRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository { return &UserRepository{DB: db} }

func (r *UserRepository) GetByID(ctx context.Context, id int) (models.User, error) {
	const q = `SELECT id, email, role, created_at FROM users WHERE id = ?`
	var (
		u     models.User
		email sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, q, id).Scan(&u.ID, &email, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, models.ErrUserNotFound
		}
		return models.User{}, err
	}
	u.Email = email.String
	return u, nil
}
