package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const opsSubject = "ops"

// GenerateOpsToken creates a signed JWT granting access to the ops surface.
func GenerateOpsToken(secret string, ttl time.Duration) (string, error) {
	claims := &jwt.RegisteredClaims{
		Subject:   opsSubject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseOpsToken validates the token and confirms it carries the ops subject.
func ParseOpsToken(secret, tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject != opsSubject {
		return jwt.ErrTokenInvalidClaims
	}

	return nil
}
