package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"` // "trainee" or "admin"
	jwt.RegisteredClaims
}

const defaultTokenTTL = 24 * time.Hour

// secret returns the signing key. Kept as a function so tests can set the
// environment before generating tokens.
func secret() ([]byte, error) {
	s := os.Getenv("JWT_SECRET")
	if s == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	return []byte(s), nil
}

// GenerateUserToken generates a JWT token for a trainee session.
func GenerateUserToken(userID string) (string, error) {
	key, err := secret()
	if err != nil {
		return "", err
	}

	claims := &JWTClaims{
		UserID: userID,
		Role:   "trainee",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(defaultTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*JWTClaims, error) {
	key, err := secret()
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}
