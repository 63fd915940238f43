package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/bannerforge/bannerforge-api/internal/pkg/response"
)

// Middleware guards a route with a single limiter keyed by keyFunc. Requests
// with an empty key pass through.
func Middleware(limiter *Limiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := limiter.Admit(r.Context(), key)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			SetHeaders(w, d)
			if !d.Allowed {
				response.TooManyRequests(w, d.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes the X-RateLimit-* headers for a decision.
func SetHeaders(w http.ResponseWriter, d Decision) {
	if d.Max <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Max))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}
