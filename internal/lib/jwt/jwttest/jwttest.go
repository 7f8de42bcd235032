// Package jwttest выпускает подписанные токены для тестов.
package jwttest

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/ent-insight/internal/lib/jwt"
)

// Token подписывает HS256-токен для userID с ролью и временем жизни ttl.
// Отрицательный ttl даёт уже истёкший токен.
func Token(t testing.TB, secret, userID, role string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := jwt.Claims{
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
