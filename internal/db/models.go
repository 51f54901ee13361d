package db

import (
	"time"
)

// Session is a stored web session with the authorization artifacts of its user.
type Session struct {
	ID           string
	Code         string
	CodeExpiry   time.Time
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
}
