package models

import (
	"time"

	"github.com/golang-jwt/jwt"
)

// User is the slice of the account entity this core needs: ownership of
// payments and an email for provider checkout. Account management itself
// lives outside this service.
type User struct {
	ID        int       `json:"id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Claims struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
	jwt.StandardClaims
}
