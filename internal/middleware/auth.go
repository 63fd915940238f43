package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/pkg/jwt"
	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
	"github.com/bannerforge/bannerforge-api/internal/pkg/response"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	TierKey   contextKey = "tier"
)

var errMissingToken = errors.New("missing token")

// Auth returns middleware that validates JWT
func Auth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(jwtService, r)
			if err != nil {
				switch {
				case errors.Is(err, errMissingToken):
					response.Unauthorized(w, "Missing authorization header")
				case errors.Is(err, jwt.ErrExpiredToken):
					response.Unauthorized(w, "Token expired")
				default:
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.UserID, claims.Tier)))
		})
	}
}

// OptionalAuth attaches the caller's identity when a valid token is present
// and otherwise lets the request through anonymously. Handlers decide what
// an anonymous caller may do.
func OptionalAuth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(jwtService, r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.UserID, claims.Tier)))
		})
	}
}

func authenticate(jwtService *jwt.Service, r *http.Request) (*jwt.Claims, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, errMissingToken
	}
	return jwtService.ValidateAccessToken(token)
}

// TokenFromRequest reads a bearer token from the Authorization header, or
// from the token query parameter for WebSocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return ""
		}
		return parts[1]
	}
	return r.URL.Query().Get("token")
}

// WithIdentity stores the caller in ctx and tags the context logger.
func WithIdentity(ctx context.Context, userID uuid.UUID, tier string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, TierKey, tier)
	return logger.WithFields(ctx, map[string]string{"user_id": userID.String()})
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(UserIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetTier extracts the subscription tier from context
func GetTier(ctx context.Context) string {
	if tier, ok := ctx.Value(TierKey).(string); ok {
		return tier
	}
	return ""
}
