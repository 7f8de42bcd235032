// Package middlewarectx содержит HTTP middleware: проверку JWT, ролей,
// ограничение частоты и шлюз доступа к тарифицируемым маршрутам.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/ent-insight/internal/api/response"
	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/jwt"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// IdentityKey — ключ пользователя запроса в контексте.
const IdentityKey Key = "identity"

// TokenParser проверяет bearer-токен.
type TokenParser interface {
	ParseToken(token string) (*jwt.Claims, error)
}

// WithIdentity кладёт пользователя в контекст.
func WithIdentity(ctx context.Context, id *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// GetIdentity достаёт пользователя из контекста.
func GetIdentity(ctx context.Context) (*models.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(*models.Identity)
	return id, ok && id != nil && id.UserID != ""
}

// JWTMiddleware проверяет заголовок Authorization и кладёт пользователя в контекст.
// При ошибке отвечает 401.
func JWTMiddleware(parser TokenParser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				sl.Op(op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.WriteError(w, r, log, apperr.Unauthorized("missing or invalid authorization header"))
				return
			}

			claims, err := parser.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				response.WriteError(w, r, log, apperr.Wrap(http.StatusUnauthorized, "invalid or expired token", err))
				return
			}
			role, err := models.ParseRole(claims.Role)
			if err != nil {
				response.WriteError(w, r, log, apperr.Wrap(http.StatusUnauthorized, "invalid or expired token", err))
				return
			}

			id := &models.Identity{UserID: claims.UserID(), Role: role}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole пропускает только пользователей с одной из ролей, иначе 403.
func RequireRole(log *slog.Logger, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r.Context())
			if !ok {
				response.WriteError(w, r, log, apperr.Unauthorized("authentication required"))
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.WriteError(w, r, log, apperr.Forbidden("insufficient permissions"))
		})
	}
}
