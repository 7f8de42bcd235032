// Package jwt проверяет bearer-токены и извлекает из них идентификатор и роль пользователя.
// Токены выпускает внешний сервис аутентификации.
package jwt

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims — данные пользователя в токене. Идентификатор хранится в sub.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserID возвращает идентификатор пользователя из sub.
func (c *Claims) UserID() string {
	return c.Subject
}

// Verifier проверяет токены HS256.
type Verifier struct {
	secretKey []byte
}

// NewVerifier создаёт Verifier по секретному ключу.
func NewVerifier(secretKey string) *Verifier {
	return &Verifier{secretKey: []byte(secretKey)}
}

// ParseToken проверяет подпись и срок действия и возвращает claims.
func (m *Verifier) ParseToken(tokenStr string) (*Claims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return m.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, errors.New("missing subject"))
	}
	return claims, nil
}
