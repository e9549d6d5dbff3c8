package auth

import (
	"github.com/angelmondragon/procurement-backend/internal/users"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	FirstName string         `json:"first_name" validate:"required,notblank,max=150"`
	LastName  string         `json:"last_name" validate:"required,notblank,max=150"`
	Email     string         `json:"email" validate:"required,email"`
	Password  string         `json:"password" validate:"required"`
	Company   string         `json:"company" validate:"required,notblank,max=40"`
	Position  string         `json:"position" validate:"required,notblank,max=40"`
	Type      enums.UserType `json:"type,omitempty"`
}

// ConfirmRequest pairs the mailed key with the account email.
type ConfirmRequest struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the bearer token for subsequent requests.
type LoginResponse struct {
	Token string         `json:"Token"`
	User  *users.UserDTO `json:"User,omitempty"`
}

// PasswordResetRequest asks for a reset key to be mailed.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PasswordResetConfirmRequest redeems a mailed key for a new password.
type PasswordResetConfirmRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}
