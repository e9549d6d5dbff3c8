package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   int64
	UserType enums.UserType
	IsStaff  bool
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID   int64          `json:"user_id"`
	UserType enums.UserType `json:"user_type"`
	IsStaff  bool           `json:"is_staff,omitempty"`
	jwt.RegisteredClaims
}
