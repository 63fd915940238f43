package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSHandler allows browser clients from allowedOrigins. A lone "*" opens the
// API to any origin but then disables credentials, which browsers reject
// together with a wildcard.
func CORSHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", requestIDHeader, "X-Device-Fingerprint"},
		ExposedHeaders: []string{
			"Retry-After",
			requestIDHeader,
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: !wildcard,
		MaxAge:           600,
	})
}
