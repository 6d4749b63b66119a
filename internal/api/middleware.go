package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/savegress/recordvault/internal/config"
)

type contextKey string

const ownerIDKey contextKey = "ownerID"

// OwnerID returns the authenticated patient id from the request context.
func OwnerID(ctx context.Context) string {
	id, _ := ctx.Value(ownerIDKey).(string)
	return id
}

// OwnerAuth validates the bearer JWT minted by the external identity provider
// and puts its subject (the patient id) on the request context. When no
// secret is configured (development), the X-Owner-ID header is trusted
// instead.
func OwnerAuth(cfg *config.ServerConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.JWTSecret == "" {
				ownerID := r.Header.Get("X-Owner-ID")
				if ownerID == "" {
					respondError(w, http.StatusUnauthorized, "Missing X-Owner-ID header")
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerIDKey, ownerID)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil || !token.Valid {
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				respondError(w, http.StatusUnauthorized, "Invalid token claims")
				return
			}

			ownerID, ok := claims["sub"].(string)
			if !ok || ownerID == "" {
				respondError(w, http.StatusUnauthorized, "Invalid subject in token")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerIDKey, ownerID)))
		})
	}
}
