package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/webprogramming/estate/backend/controllers"
	"github.com/webprogramming/estate/backend/models"
	"github.com/webprogramming/estate/backend/utils"
)

// TokenValidator verifies session tokens.
type TokenValidator interface {
	ValidateJWT(tokenStr string) (*utils.Claims, error)
}

// AuthMiddleware admits requests carrying a valid session token, read from
// the access_token cookie or an "Authorization: Bearer" header.
func AuthMiddleware(tokens TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				controllers.WriteError(w, r, logger, models.NewAuthenticationError("Unauthorized"))
				return
			}

			claims, err := tokens.ValidateJWT(token)
			if err != nil {
				logger.Debug("rejected session token", "path", r.URL.Path, "error", err)
				controllers.WriteError(w, r, logger, models.NewAuthenticationError("Invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), controllers.UserIDKey, claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(controllers.AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	tokenParts := strings.Fields(r.Header.Get("Authorization"))
	if len(tokenParts) == 2 && strings.EqualFold(tokenParts[0], "Bearer") {
		return tokenParts[1]
	}
	return ""
}
