package utils

import (
	"errors" // Error values
	"time"   // Time for token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// Roles carried in tokens
const (
	RoleTreasurer = "treasurer" // Opens withdrawals and runs crediting
	RoleApprover  = "approver"  // Approves or rejects withdrawals
	RoleAdmin     = "admin"     // Everything, plus fund administration
	RoleSystem    = "system"    // Service accounts posting payment batches
)

// ErrUnknownRole is returned when a token is requested for a role outside the known set
var ErrUnknownRole = errors.New("unknown role")

// ValidRole reports whether role is one of the known roles
func ValidRole(role string) bool {
	switch role {
	case RoleTreasurer, RoleApprover, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// JWT Claims
type Claims struct {
	UserID               uint   `json:"user_id"` // Acting user
	Role                 string `json:"role"`    // Acting role
	jwt.RegisteredClaims        // Standard JWT claims
}

// GenerateJWT creates a token for a user acting in role, valid for ttl
func GenerateJWT(userID uint, role, secret string, ttl time.Duration) (string, error) {
	if !ValidRole(role) {
		return "", ErrUnknownRole
	}
	now := time.Now()
	claims := Claims{
		UserID: userID, // Custom claim for user ID
		Role:   role,   // Custom claim for role
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)), // Expiry
			IssuedAt:  jwt.NewNumericDate(now),          // Issued at current time
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims) // Create token with claims
	return token.SignedString([]byte(secret))                  // Sign the token with the secret
}

// ParseJWT parses and validates a token string. Only HS256 is accepted.
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil // Return the secret key for validation
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err // Return error if parsing fails
	}
	// Validate token and extract claims
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != 0 && ValidRole(claims.Role) {
		return claims, nil // Return claims if valid
	}
	return nil, jwt.ErrTokenInvalidClaims
}
