package models

import (
	"time"
)

// User is a panel account. PasswordHash is a bcrypt hash and never leaves
// the server.
type User struct {
	ID           int64     `json:"id" example:"1" format:"int64" readOnly:"true"`
	Username     string    `json:"username" example:"admin" binding:"required"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at" readOnly:"true"`
	UpdatedAt    time.Time `json:"updated_at" readOnly:"true"`
}

// LoginRequest is the body for POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username" example:"admin" binding:"required"`
	Password string `json:"password" example:"admin" binding:"required"`
}

// LoginResponse carries the signed session token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username" example:"admin"`
}

// ChangePasswordRequest is the body for changing the current user's password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}
