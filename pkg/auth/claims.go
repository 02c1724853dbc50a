package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role is the back-office role carried in the access token.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleStaff:
		return true
	}
	return false
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	ActorID string
	Role    Role
	JTI     string
}

// AccessTokenClaims is the typed JWT issued by the back-office auth service.
// The actor identifier travels in the standard "sub" claim.
type AccessTokenClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}
