package middleware

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/pidash/internal/server/handlers"
)

// AuthMiddleware создает middleware для проверки JWT токена.
// Токен берется из Authorization: Bearer или из query ?token= (websocket).
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tokenString := handlers.TokenFromRequest(r)
			if tokenString == "" {
				logger.DebugContext(ctx, "missing access token", "path", r.URL.Path)
				handlers.SendError(logger, w, "missing token", http.StatusUnauthorized)
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, tokenString)
			if err != nil {
				logger.WarnContext(ctx, "invalid access token", "error", err)
				handlers.SendError(logger, w, "invalid token", http.StatusUnauthorized)
				return
			}

			logger.DebugContext(ctx, "user authenticated", "username", claims.Username)
			next.ServeHTTP(w, r.WithContext(handlers.WithUsername(ctx, claims.Username)))
		})
	}
}
